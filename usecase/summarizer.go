package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

const (
	summaryTranscriptEntries = 80
	summaryMaxTokens         = 1200
	summaryTemperature       = 0.2
	heuristicWeaknesses      = 3
)

// weaknessLabels turns correction categories into learner-facing weaknesses
var weaknessLabels = map[entities.CorrectionCategory]string{
	entities.CategoryGrammar:       "grammar",
	entities.CategoryConjugation:   "verb conjugation",
	entities.CategoryAgreement:     "gender and number agreement",
	entities.CategoryVocabulary:    "word choice",
	entities.CategoryPronunciation: "pronunciation",
	entities.CategorySpelling:      "spelling",
}

const summarySystemPrompt = `You compress French tutoring sessions into a learning summary.
Return one JSON object with exactly these keys:
"new_vocabulary": [{"word": "<French word or expression, no article>", "translation": "<English>", "example": "<short French sentence>"}],
"grammar_practiced": [{"concept": "<grammar concept>", "struggled": true|false}],
"strengths": [], "weaknesses": [], "highlights": [], "recommended_focus": [], "topics": [],
"note": "<one encouraging sentence for the learner>".
All list items are short phrases. Only include vocabulary the learner actually used or was taught.`

// Summarizer compresses a finished session into a SessionSummary
type Summarizer struct {
	llm    repositories.LargeLanguageModel
	logger *zap.Logger
}

// NewSummarizer creates a new summarizer
func NewSummarizer(llm repositories.LargeLanguageModel, logger *zap.Logger) *Summarizer {
	return &Summarizer{llm: llm, logger: logger}
}

// Summarize asks the model for a summary and falls back to a heuristic one
// built from the corrections when the call or its parsing fails
func (s *Summarizer) Summarize(ctx context.Context, session *entities.Session, profile *entities.Profile) *entities.SessionSummary {
	raw, err := s.llm.Complete(ctx, repositories.CompletionRequest{
		System:      summarySystemPrompt,
		Messages:    []repositories.ChatMessage{{Role: repositories.UserRole, Content: summaryInput(session, profile)}},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
		JSON:        true,
	})
	if err != nil {
		s.logger.Warn("Summary model failed, using heuristic summary",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return HeuristicSummary(session)
	}

	summary, err := parseSummary(raw)
	if err != nil {
		s.logger.Warn("Failed to parse session summary, using heuristic summary",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return HeuristicSummary(session)
	}
	if len(summary.Topics) == 0 && session.Topic != "" {
		summary.Topics = []string{session.Topic}
	}
	return summary
}

func summaryInput(session *entities.Session, profile *entities.Profile) string {
	var b strings.Builder
	if profile != nil {
		fmt.Fprintf(&b, "Learner level: %s\n", profile.Level)
	}
	fmt.Fprintf(&b, "Mode: %s\n", session.Mode)
	if session.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", session.Topic)
	}

	entries := session.Transcript
	if len(entries) > summaryTranscriptEntries {
		entries = entries[len(entries)-summaryTranscriptEntries:]
	}
	b.WriteString("\nTranscript:\n")
	for _, e := range entries {
		speaker := "Learner"
		if e.Role == entities.RoleTutor {
			speaker = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, e.Text)
	}

	if len(session.Corrections) > 0 {
		b.WriteString("\nCorrections:\n")
		for _, c := range session.Corrections {
			fmt.Fprintf(&b, "- %q -> %q (%s)", c.Original, c.Corrected, c.Category)
			if c.Explanation != "" {
				fmt.Fprintf(&b, ": %s", c.Explanation)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func parseSummary(raw string) (*entities.SessionSummary, error) {
	obj, ok := extractJSONObject(stripCodeFence(raw))
	if !ok {
		return nil, fmt.Errorf("no JSON object in summary response")
	}
	var summary entities.SessionSummary
	if err := json.Unmarshal([]byte(obj), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	summary.Strengths = cleanList(summary.Strengths)
	summary.Weaknesses = cleanList(summary.Weaknesses)
	summary.Highlights = cleanList(summary.Highlights)
	summary.RecommendedFocus = cleanList(summary.RecommendedFocus)
	summary.Topics = cleanList(summary.Topics)
	summary.Note = strings.TrimSpace(summary.Note)

	vocab := summary.NewVocabulary[:0]
	for _, v := range summary.NewVocabulary {
		if strings.TrimSpace(v.Word) != "" {
			vocab = append(vocab, v)
		}
	}
	summary.NewVocabulary = vocab

	grammar := summary.GrammarPracticed[:0]
	for _, g := range summary.GrammarPracticed {
		if strings.TrimSpace(g.Concept) != "" {
			grammar = append(grammar, g)
		}
	}
	summary.GrammarPracticed = grammar
	summary.Heuristic = false
	return &summary, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// HeuristicSummary derives a summary from the session's corrections alone
func HeuristicSummary(session *entities.Session) *entities.SessionSummary {
	summary := &entities.SessionSummary{
		NewVocabulary:    []entities.SummaryVocabulary{},
		GrammarPracticed: []entities.GrammarPoint{},
		Strengths:        []string{},
		Weaknesses:       []string{},
		Highlights:       []string{},
		RecommendedFocus: []string{},
		Topics:           []string{},
		Heuristic:        true,
	}

	counts := make(map[entities.CorrectionCategory]int)
	seenWords := make(map[string]bool)
	for _, c := range session.Corrections {
		category := entities.NormalizeCategory(string(c.Category))
		counts[category]++
		if category != entities.CategoryVocabulary {
			continue
		}
		word := strings.TrimSpace(c.Corrected)
		key := strings.ToLower(word)
		if word == "" || seenWords[key] {
			continue
		}
		seenWords[key] = true
		summary.NewVocabulary = append(summary.NewVocabulary, entities.SummaryVocabulary{
			Word:    word,
			Example: strings.TrimSpace(c.Explanation),
		})
	}

	categories := make([]entities.CorrectionCategory, 0, len(counts))
	for c := range counts {
		if _, ok := weaknessLabels[c]; ok {
			categories = append(categories, c)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > heuristicWeaknesses {
		categories = categories[:heuristicWeaknesses]
	}
	for _, c := range categories {
		summary.Weaknesses = append(summary.Weaknesses, weaknessLabels[c])
	}
	summary.RecommendedFocus = append(summary.RecommendedFocus, summary.Weaknesses...)

	turns := session.UserTurnCount()
	if turns > 0 {
		summary.Highlights = append(summary.Highlights, fmt.Sprintf("Spoke %d times in French", turns))
	}
	if turns > 0 && len(session.Corrections) == 0 {
		summary.Highlights = append(summary.Highlights, "No corrections needed")
	}
	if session.Topic != "" {
		summary.Topics = append(summary.Topics, session.Topic)
	}
	summary.Note = "Summary generated from corrections only."
	return summary
}
