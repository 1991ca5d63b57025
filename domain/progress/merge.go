package progress

import (
	"strings"
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

// MaxTerms caps the strengths and weaknesses lists kept on a profile
const MaxTerms = 25

// maxVocabularyCorrectionTokens bounds how long a corrected phrase may be
// before it is treated as a sentence rather than a vocabulary item
const maxVocabularyCorrectionTokens = 4

func clampMastery(m int) int {
	if m < entities.MinMastery {
		return entities.MinMastery
	}
	if m > entities.MaxMastery {
		return entities.MaxMastery
	}
	return m
}

func misusedIn(corrections []entities.Correction, word string) bool {
	for _, c := range corrections {
		if containsPhrase(c.Original, word) {
			return true
		}
	}
	return false
}

// MergeVocabulary folds the words of one session into the learner's list.
// Only words listed in the summary are re-scored: used cleanly they gain a
// mastery level, used inside a corrected phrase they lose one. Existing order
// is kept and new words are appended.
func MergeVocabulary(existing []entities.VocabularyEntry, incoming []entities.SummaryVocabulary, corrections []entities.Correction, now time.Time) []entities.VocabularyEntry {
	out := make([]entities.VocabularyEntry, len(existing), len(existing)+len(incoming))
	copy(out, existing)

	index := make(map[string]int, len(out))
	for i, e := range out {
		index[NormalizeTerm(e.Word)] = i
	}
	touched := make(map[int]bool)

	for _, v := range incoming {
		key := NormalizeTerm(v.Word)
		if key == "" {
			continue
		}
		misused := misusedIn(corrections, key)

		if i, ok := index[key]; ok {
			if touched[i] {
				continue
			}
			touched[i] = true
			e := &out[i]
			e.TimesUsed++
			e.LastSeen = now
			if misused {
				e.Mastery = clampMastery(e.Mastery - 1)
				e.TimesCorrected++
			} else {
				e.Mastery = clampMastery(e.Mastery + 1)
			}
			if e.Translation == "" {
				e.Translation = strings.TrimSpace(v.Translation)
			}
			if e.Example == "" {
				e.Example = strings.TrimSpace(v.Example)
			}
			continue
		}

		entry := entities.VocabularyEntry{
			Word:        CleanTerm(v.Word),
			Translation: strings.TrimSpace(v.Translation),
			Mastery:     entities.MinMastery,
			TimesUsed:   1,
			FirstSeen:   now,
			LastSeen:    now,
			Example:     strings.TrimSpace(v.Example),
		}
		if misused {
			entry.TimesCorrected = 1
		}
		out = append(out, entry)
		index[key] = len(out) - 1
		touched[len(out)-1] = true
	}

	for _, c := range corrections {
		if c.Category != entities.CategoryVocabulary {
			continue
		}
		key := NormalizeTerm(c.Corrected)
		if key == "" || len(tokens(key)) > maxVocabularyCorrectionTokens {
			continue
		}
		if _, ok := index[key]; ok {
			continue
		}
		out = append(out, entities.VocabularyEntry{
			Word:           CleanTerm(c.Corrected),
			Mastery:        entities.MinMastery,
			TimesCorrected: 1,
			FirstSeen:      now,
			LastSeen:       now,
			Example:        strings.TrimSpace(c.Explanation),
		})
		index[key] = len(out) - 1
	}

	return out
}

// MergeGrammar folds the grammar concepts practiced in a session
func MergeGrammar(existing []entities.GrammarEntry, points []entities.GrammarPoint, now time.Time) []entities.GrammarEntry {
	out := make([]entities.GrammarEntry, len(existing), len(existing)+len(points))
	copy(out, existing)

	index := make(map[string]int, len(out))
	for i, g := range out {
		index[FoldTerm(g.Concept)] = i
	}

	// one update per concept per session; struggling anywhere wins
	type merged struct {
		concept   string
		struggled bool
	}
	var order []string
	session := make(map[string]*merged)
	for _, p := range points {
		key := FoldTerm(p.Concept)
		if key == "" {
			continue
		}
		if m, ok := session[key]; ok {
			m.struggled = m.struggled || p.Struggled
			continue
		}
		session[key] = &merged{concept: CleanTerm(p.Concept), struggled: p.Struggled}
		order = append(order, key)
	}

	for _, key := range order {
		m := session[key]
		if i, ok := index[key]; ok {
			g := &out[i]
			g.TimesPracticed++
			g.LastSeen = now
			if m.struggled {
				g.Mastery = clampMastery(g.Mastery - 1)
				g.ErrorCount++
			} else {
				g.Mastery = clampMastery(g.Mastery + 1)
			}
			continue
		}
		g := entities.GrammarEntry{
			Concept:        m.concept,
			Mastery:        2,
			TimesPracticed: 1,
			LastSeen:       now,
		}
		if m.struggled {
			g.Mastery = 1
			g.ErrorCount = 1
		}
		out = append(out, g)
		index[key] = len(out) - 1
	}
	return out
}

// MergeTerms is an order-preserving, case- and accent-insensitive union.
// The first spelling seen wins; beyond limit the oldest terms are dropped.
func MergeTerms(existing, incoming []string, limit int) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{existing, incoming} {
		for _, t := range list {
			key := FoldTerm(t)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, CleanTerm(t))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RemoveTerms drops every term of list that matches one of remove
func RemoveTerms(list, remove []string) []string {
	if len(remove) == 0 {
		return list
	}
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[FoldTerm(r)] = true
	}
	out := make([]string, 0, len(list))
	for _, t := range list {
		if !drop[FoldTerm(t)] {
			out = append(out, t)
		}
	}
	return out
}

// SessionDate is the calendar day a session counts towards, in the
// learner's timezone
func SessionDate(s *entities.Session, loc *time.Location) string {
	at := s.StartedAt
	if s.EndedAt != nil {
		at = *s.EndedAt
	}
	return at.In(loc).Format(entities.DateLayout)
}

// ApplySession folds a finished session and its summary into the profile.
// It reports whether the profile changed; sessions without a single learner
// utterance are ignored.
func ApplySession(p *entities.Profile, s *entities.Session, summary *entities.SessionSummary, now time.Time) bool {
	if s.UserTurnCount() == 0 {
		return false
	}
	if summary == nil {
		summary = &entities.SessionSummary{}
	}

	p.TotalPracticeMinutes += s.PracticeMinutes()
	p.SessionCount++
	UpdateStreak(p, SessionDate(s, p.Location()))

	p.Vocabulary = MergeVocabulary(p.Vocabulary, summary.NewVocabulary, s.Corrections, now)
	p.Grammar = MergeGrammar(p.Grammar, summary.GrammarPracticed, now)

	p.Weaknesses = RemoveTerms(MergeTerms(p.Weaknesses, summary.Weaknesses, MaxTerms), summary.Strengths)
	p.Strengths = RemoveTerms(MergeTerms(p.Strengths, summary.Strengths, MaxTerms), summary.Weaknesses)

	p.UpdatedAt = now
	return true
}
