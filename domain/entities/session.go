package entities

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// SessionMode selects the kind of practice
type SessionMode string

const (
	SessionModeConversation SessionMode = "conversation"
	SessionModeScenario     SessionMode = "scenario"
	SessionModeReview       SessionMode = "review"
)

// Valid reports whether m is a known mode
func (m SessionMode) Valid() bool {
	switch m {
	case SessionModeConversation, SessionModeScenario, SessionModeReview:
		return true
	}
	return false
}

// Role represents the speaker of a transcript entry
type Role string

const (
	RoleUser  Role = "user"
	RoleTutor Role = "tutor"
)

// CorrectionCategory classifies a correction
type CorrectionCategory string

const (
	CategoryGrammar       CorrectionCategory = "grammar"
	CategoryVocabulary    CorrectionCategory = "vocabulary"
	CategoryPronunciation CorrectionCategory = "pronunciation"
	CategoryConjugation   CorrectionCategory = "conjugation"
	CategoryAgreement     CorrectionCategory = "agreement"
	CategorySpelling      CorrectionCategory = "spelling"
	CategoryOther         CorrectionCategory = "other"
)

// NormalizeCategory maps free-form model output onto a known category
func NormalizeCategory(s string) CorrectionCategory {
	c := CorrectionCategory(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryGrammar, CategoryVocabulary, CategoryPronunciation,
		CategoryConjugation, CategoryAgreement, CategorySpelling:
		return c
	case "verb", "tense":
		return CategoryConjugation
	case "gender":
		return CategoryAgreement
	case "word choice", "word_choice", "lexical":
		return CategoryVocabulary
	}
	return CategoryOther
}

// TranscriptEntry is one utterance in a session
type TranscriptEntry struct {
	Role            Role      `json:"role" bson:"role"`
	Text            string    `json:"text" bson:"text"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	AudioDurationMs int64     `json:"audio_duration_ms,omitempty" bson:"audio_duration_ms,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty" bson:"confidence,omitempty"`
}

// Correction is a mistake the tutor pointed out
type Correction struct {
	Original    string             `json:"original" bson:"original"`
	Corrected   string             `json:"corrected" bson:"corrected"`
	Explanation string             `json:"explanation" bson:"explanation"`
	Category    CorrectionCategory `json:"category" bson:"category"`
	TurnIndex   int                `json:"turn_index" bson:"turn_index"`
	Timestamp   time.Time          `json:"timestamp" bson:"timestamp"`
}

// SummaryVocabulary is a word surfaced by the session summary
type SummaryVocabulary struct {
	Word        string `json:"word" bson:"word"`
	Translation string `json:"translation,omitempty" bson:"translation,omitempty"`
	Example     string `json:"example,omitempty" bson:"example,omitempty"`
}

// GrammarPoint is a grammar concept practiced during a session
type GrammarPoint struct {
	Concept   string `json:"concept" bson:"concept"`
	Struggled bool   `json:"struggled" bson:"struggled"`
}

// SessionSummary is the compressed digest of a finished session
type SessionSummary struct {
	NewVocabulary    []SummaryVocabulary `json:"new_vocabulary" bson:"new_vocabulary"`
	GrammarPracticed []GrammarPoint      `json:"grammar_practiced" bson:"grammar_practiced"`
	Strengths        []string            `json:"strengths" bson:"strengths"`
	Weaknesses       []string            `json:"weaknesses" bson:"weaknesses"`
	Highlights       []string            `json:"highlights" bson:"highlights"`
	RecommendedFocus []string            `json:"recommended_focus" bson:"recommended_focus"`
	Topics           []string            `json:"topics" bson:"topics"`
	Note             string              `json:"note,omitempty" bson:"note,omitempty"`
	Heuristic        bool                `json:"heuristic,omitempty" bson:"heuristic,omitempty"`
}

// Session represents a tutoring conversation
type Session struct {
	ID              string            `json:"id" bson:"_id"`
	UserID          string            `json:"user_id" bson:"user_id"`
	Mode            SessionMode       `json:"mode" bson:"mode"`
	Topic           string            `json:"topic,omitempty" bson:"topic,omitempty"`
	Status          SessionStatus     `json:"status" bson:"status"`
	StartedAt       time.Time         `json:"started_at" bson:"started_at"`
	LastActivityAt  time.Time         `json:"last_activity_at" bson:"last_activity_at"`
	EndedAt         *time.Time        `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	DurationSeconds int64             `json:"duration_seconds" bson:"duration_seconds"`
	Transcript      []TranscriptEntry `json:"transcript" bson:"transcript"`
	Corrections     []Correction      `json:"corrections" bson:"corrections"`
	Summary         *SessionSummary   `json:"summary,omitempty" bson:"summary,omitempty"`
}

// NewSession creates a new active session
func NewSession(id, userID string, mode SessionMode, topic string, now time.Time) *Session {
	if mode == "" {
		mode = SessionModeConversation
	}
	return &Session{
		ID:             id,
		UserID:         userID,
		Mode:           mode,
		Topic:          strings.TrimSpace(topic),
		Status:         SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		Transcript:     make([]TranscriptEntry, 0),
		Corrections:    make([]Correction, 0),
	}
}

// Turn is one exchange: the learner's utterance and the tutor's answer
type Turn struct {
	User        TranscriptEntry
	Tutor       TranscriptEntry
	Corrections []Correction
}

// AddTurn appends a turn, stamping corrections with the user entry index
func (s *Session) AddTurn(turn Turn) {
	idx := len(s.Transcript)
	s.Transcript = append(s.Transcript, turn.User, turn.Tutor)
	for _, c := range turn.Corrections {
		c.TurnIndex = idx
		if c.Timestamp.IsZero() {
			c.Timestamp = turn.User.Timestamp
		}
		s.Corrections = append(s.Corrections, c)
	}
	if turn.Tutor.Timestamp.After(s.LastActivityAt) {
		s.LastActivityAt = turn.Tutor.Timestamp
	}
}

// UserTurnCount returns the number of learner utterances
func (s *Session) UserTurnCount() int {
	n := 0
	for _, e := range s.Transcript {
		if e.Role == RoleUser {
			n++
		}
	}
	return n
}

// IsActive reports whether the session still accepts turns
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// ShouldStartNew reports whether an active session has gone stale
func (s *Session) ShouldStartNew(now time.Time, staleAfter time.Duration) bool {
	if !s.IsActive() {
		return true
	}
	return now.Sub(s.LastActivityAt) > staleAfter
}

// End closes the session and computes its duration
func (s *Session) End(now time.Time) {
	s.EndedAt = &now
	s.Status = SessionStatusEnded
	d := now.Sub(s.StartedAt)
	if d < 0 {
		d = 0
	}
	s.DurationSeconds = int64(d / time.Second)
}

// Abandon closes a session that never received a user turn
func (s *Session) Abandon(now time.Time) {
	s.End(now)
	s.Status = SessionStatusAbandoned
}

// Reopen undoes End
func (s *Session) Reopen() {
	s.EndedAt = nil
	s.Status = SessionStatusActive
	s.DurationSeconds = 0
}

// PracticeMinutes is the whole-minute practice credit for the session
func (s *Session) PracticeMinutes() int {
	if s.UserTurnCount() == 0 {
		return 0
	}
	m := int(math.Round(float64(s.DurationSeconds) / 60))
	if m < 1 {
		m = 1
	}
	return m
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.UserID == "" {
		return errors.New("user_id is required")
	}
	if !s.Mode.Valid() {
		return errors.New("invalid session mode")
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusEnded && s.Status != SessionStatusAbandoned {
		return errors.New("invalid session status")
	}
	return nil
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Transcript = slices.Clone(s.Transcript)
	c.Corrections = slices.Clone(s.Corrections)
	if s.Summary != nil {
		sum := *s.Summary
		sum.NewVocabulary = slices.Clone(s.Summary.NewVocabulary)
		sum.GrammarPracticed = slices.Clone(s.Summary.GrammarPracticed)
		sum.Strengths = slices.Clone(s.Summary.Strengths)
		sum.Weaknesses = slices.Clone(s.Summary.Weaknesses)
		sum.Highlights = slices.Clone(s.Summary.Highlights)
		sum.RecommendedFocus = slices.Clone(s.Summary.RecommendedFocus)
		sum.Topics = slices.Clone(s.Summary.Topics)
		c.Summary = &sum
	}
	return &c
}
