package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/progress"
	"github.com/satriahrh/parle/domain/repositories"
)

const (
	defaultHistoryTurns  = 20
	troubleWordsInPrompt = 8
	weaknessesInPrompt   = 8
	tutorMaxTokens       = 600
	tutorTemperature     = 0.7
)

// fallbackReplies keep the conversation going when the model is unavailable
var fallbackReplies = []string{
	"Désolé, je n'ai pas bien compris. Tu peux répéter, s'il te plaît ?",
	"Pardon, j'ai eu un petit problème. Tu peux le redire autrement ?",
	"Excuse-moi, je n'ai pas entendu. On continue ? De quoi veux-tu parler ?",
}

// TutorConfig tunes the tutor prompt
type TutorConfig struct {
	// HistoryTurns is the number of transcript entries sent as chat history
	HistoryTurns int
}

// TutorReply is the tutor's answer to one learner utterance
type TutorReply struct {
	Text        string                `json:"text"`
	Corrections []entities.Correction `json:"corrections"`
	// Fallback is set when the reply did not come from the model
	Fallback bool `json:"fallback,omitempty"`
}

// Tutor asks the chat model for a French reply with corrections
type Tutor struct {
	llm          repositories.LargeLanguageModel
	historyTurns int
	logger       *zap.Logger
}

// NewTutor creates a new tutor
func NewTutor(llm repositories.LargeLanguageModel, config TutorConfig, logger *zap.Logger) *Tutor {
	if config.HistoryTurns <= 0 {
		config.HistoryTurns = defaultHistoryTurns
	}
	return &Tutor{llm: llm, historyTurns: config.HistoryTurns, logger: logger}
}

// Reply generates the tutor's answer to text. It never fails: model errors
// produce a fallback reply.
func (t *Tutor) Reply(ctx context.Context, profile *entities.Profile, session *entities.Session, text string) TutorReply {
	req := repositories.CompletionRequest{
		System:      t.systemPrompt(profile, session),
		Messages:    t.history(session, text),
		MaxTokens:   tutorMaxTokens,
		Temperature: tutorTemperature,
		JSON:        true,
	}

	raw, err := t.llm.Complete(ctx, req)
	if err != nil {
		t.logger.Error("Tutor model failed, using fallback reply",
			zap.String("provider", t.llm.Name()),
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return t.fallback(session)
	}

	reply, ok := parseTutorResponse(raw)
	if !ok {
		t.logger.Warn("Tutor model returned an empty reply, using fallback",
			zap.String("provider", t.llm.Name()),
			zap.String("sessionID", session.ID))
		return t.fallback(session)
	}
	if profile.Settings.CorrectionStyle == entities.CorrectionStyleOff {
		reply.Corrections = nil
	}
	return reply
}

func (t *Tutor) fallback(session *entities.Session) TutorReply {
	text := fallbackReplies[session.UserTurnCount()%len(fallbackReplies)]
	return TutorReply{Text: text, Fallback: true}
}

func (t *Tutor) history(session *entities.Session, text string) []repositories.ChatMessage {
	entries := session.Transcript
	if len(entries) > t.historyTurns {
		entries = entries[len(entries)-t.historyTurns:]
	}
	msgs := make([]repositories.ChatMessage, 0, len(entries)+1)
	for _, e := range entries {
		role := repositories.UserRole
		if e.Role == entities.RoleTutor {
			role = repositories.AssistantRole
		}
		msgs = append(msgs, repositories.ChatMessage{Role: role, Content: e.Text})
	}
	return append(msgs, repositories.ChatMessage{Role: repositories.UserRole, Content: text})
}

func (t *Tutor) systemPrompt(profile *entities.Profile, session *entities.Session) string {
	var b strings.Builder
	b.WriteString("You are Parle, a warm and patient French conversation tutor. ")
	b.WriteString("Always answer in French, in one to three short sentences, and end with a question that keeps the learner talking.\n")
	fmt.Fprintf(&b, "Learner level (CEFR): %s. Adapt vocabulary and grammar to this level.\n", profile.Level)
	if profile.NativeLanguage != "" {
		fmt.Fprintf(&b, "Learner's native language: %s. Use it only for short explanations of corrections.\n", profile.NativeLanguage)
	}
	if profile.DisplayName != "" {
		fmt.Fprintf(&b, "The learner's name is %s.\n", profile.DisplayName)
	}

	switch session.Mode {
	case entities.SessionModeScenario:
		topic := session.Topic
		if topic == "" {
			topic = "a café in Paris"
		}
		fmt.Fprintf(&b, "Role-play this scenario and stay in character: %s.\n", topic)
	case entities.SessionModeReview:
		b.WriteString("This is a review session: steer the conversation towards the learner's weak points listed below.\n")
	default:
		if session.Topic != "" {
			fmt.Fprintf(&b, "Conversation topic: %s.\n", session.Topic)
		}
	}

	switch profile.Settings.CorrectionStyle {
	case entities.CorrectionStyleDirect:
		b.WriteString("Correct every mistake explicitly.\n")
	case entities.CorrectionStyleOff:
		b.WriteString("Do not correct mistakes; keep the conversation flowing.\n")
	default:
		b.WriteString("Correct only mistakes that matter, gently, and model the right form in your reply.\n")
	}

	if n := len(profile.Weaknesses); n > 0 {
		recent := profile.Weaknesses
		if n > weaknessesInPrompt {
			recent = recent[n-weaknessesInPrompt:]
		}
		fmt.Fprintf(&b, "Known weaknesses: %s.\n", strings.Join(recent, "; "))
	}
	if words := progress.TroubleWords(profile, troubleWordsInPrompt); len(words) > 0 {
		list := make([]string, len(words))
		for i, w := range words {
			list[i] = w.Word
		}
		fmt.Fprintf(&b, "Words the learner struggles with, reuse them naturally: %s.\n", strings.Join(list, ", "))
	}

	b.WriteString(`Respond with a JSON object: {"reply": "<your French reply>", "corrections": [{"original": "<learner's words>", "corrected": "<correct French>", "explanation": "<short explanation>", "category": "grammar|vocabulary|pronunciation|conjugation|agreement|spelling|other"}]}. `)
	b.WriteString(`Use an empty corrections array when there is nothing to correct.`)
	return b.String()
}

type tutorPayload struct {
	Reply       string `json:"reply"`
	Corrections []struct {
		Original    string `json:"original"`
		Corrected   string `json:"corrected"`
		Explanation string `json:"explanation"`
		Category    string `json:"category"`
	} `json:"corrections"`
}

// parseTutorResponse reads the model's JSON reply. Replies that are not JSON
// are used verbatim without corrections.
func parseTutorResponse(raw string) (TutorReply, bool) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return TutorReply{}, false
	}

	obj, ok := extractJSONObject(raw)
	if !ok {
		return TutorReply{Text: raw}, true
	}
	var payload tutorPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return TutorReply{Text: raw}, true
	}
	text := strings.TrimSpace(payload.Reply)
	if text == "" {
		return TutorReply{}, false
	}

	reply := TutorReply{Text: text}
	for _, c := range payload.Corrections {
		original := strings.TrimSpace(c.Original)
		corrected := strings.TrimSpace(c.Corrected)
		if original == "" || corrected == "" || strings.EqualFold(original, corrected) {
			continue
		}
		reply.Corrections = append(reply.Corrections, entities.Correction{
			Original:    original,
			Corrected:   corrected,
			Explanation: strings.TrimSpace(c.Explanation),
			Category:    entities.NormalizeCategory(c.Category),
		})
	}
	return reply, true
}
