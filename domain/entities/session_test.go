package entities

import (
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := NewSession("session-1", "user-1", "", " café ", now)

	if session.UserID != "user-1" {
		t.Errorf("Expected user ID user-1, got %s", session.UserID)
	}

	if session.Status != SessionStatusActive {
		t.Errorf("Expected status %s, got %s", SessionStatusActive, session.Status)
	}

	if session.Mode != SessionModeConversation {
		t.Errorf("Expected default mode %s, got %s", SessionModeConversation, session.Mode)
	}

	if session.Topic != "café" {
		t.Errorf("Expected trimmed topic, got %q", session.Topic)
	}

	if len(session.Transcript) != 0 {
		t.Errorf("Expected empty transcript, got %d entries", len(session.Transcript))
	}
}

func TestAddTurn(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := NewSession("session-1", "user-1", SessionModeConversation, "", start)

	userAt := start.Add(time.Minute)
	tutorAt := userAt.Add(2 * time.Second)
	session.AddTurn(Turn{
		User:  TranscriptEntry{Role: RoleUser, Text: "Je suis allé au marché hier", Timestamp: userAt},
		Tutor: TranscriptEntry{Role: RoleTutor, Text: "Super ! Qu'est-ce que tu as acheté ?", Timestamp: tutorAt},
	})
	session.AddTurn(Turn{
		User:  TranscriptEntry{Role: RoleUser, Text: "J'ai acheté des pomme", Timestamp: tutorAt.Add(time.Minute)},
		Tutor: TranscriptEntry{Role: RoleTutor, Text: "On dit « des pommes ».", Timestamp: tutorAt.Add(time.Minute + time.Second)},
		Corrections: []Correction{
			{Original: "des pomme", Corrected: "des pommes", Category: CategoryAgreement},
		},
	})

	if len(session.Transcript) != 4 {
		t.Fatalf("Expected 4 transcript entries, got %d", len(session.Transcript))
	}

	if session.UserTurnCount() != 2 {
		t.Errorf("Expected 2 user turns, got %d", session.UserTurnCount())
	}

	if len(session.Corrections) != 1 {
		t.Fatalf("Expected 1 correction, got %d", len(session.Corrections))
	}

	if session.Corrections[0].TurnIndex != 2 {
		t.Errorf("Expected correction turn index 2, got %d", session.Corrections[0].TurnIndex)
	}

	if session.Corrections[0].Timestamp.IsZero() {
		t.Error("Expected correction timestamp to default to the user entry")
	}

	if !session.LastActivityAt.Equal(tutorAt.Add(time.Minute + time.Second)) {
		t.Errorf("Expected LastActivityAt to follow the tutor reply, got %v", session.LastActivityAt)
	}
}

func TestShouldStartNew(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := NewSession("session-1", "user-1", SessionModeConversation, "", start)

	if session.ShouldStartNew(start.Add(10*time.Minute), 30*time.Minute) {
		t.Error("Should keep a recently active session")
	}

	if !session.ShouldStartNew(start.Add(31*time.Minute), 30*time.Minute) {
		t.Error("Should start a new session when the last activity is old")
	}

	session.End(start.Add(5 * time.Minute))
	if !session.ShouldStartNew(start.Add(6*time.Minute), 30*time.Minute) {
		t.Error("Should start a new session when the current one has ended")
	}
}

func TestEndAndPracticeMinutes(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		duration  time.Duration
		userTurns int
		want      int
	}{
		{"no turns", 12 * time.Minute, 0, 0},
		{"short session gets one minute", 20 * time.Second, 1, 1},
		{"rounds down", 7*time.Minute + 29*time.Second, 2, 7},
		{"rounds up", 7*time.Minute + 30*time.Second, 2, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("s", "u", SessionModeConversation, "", start)
			for i := 0; i < tt.userTurns; i++ {
				s.AddTurn(Turn{
					User:  TranscriptEntry{Role: RoleUser, Text: "bonjour", Timestamp: start},
					Tutor: TranscriptEntry{Role: RoleTutor, Text: "bonjour !", Timestamp: start},
				})
			}
			s.End(start.Add(tt.duration))
			if s.Status != SessionStatusEnded || s.EndedAt == nil {
				t.Fatalf("Expected ended session, got status %s", s.Status)
			}
			if got := s.PracticeMinutes(); got != tt.want {
				t.Errorf("PracticeMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEndClampsNegativeDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewSession("s", "u", SessionModeConversation, "", start)
	s.End(start.Add(-time.Minute))
	if s.DurationSeconds != 0 {
		t.Errorf("Expected duration 0 for clock skew, got %d", s.DurationSeconds)
	}

	s.Reopen()
	if !s.IsActive() || s.EndedAt != nil {
		t.Error("Reopen should restore an active session")
	}
}

func TestSessionValidation(t *testing.T) {
	session := NewSession("session-1", "user-1", SessionModeReview, "", time.Now())
	if err := session.Validate(); err != nil {
		t.Errorf("Valid session should not have validation errors, got: %v", err)
	}

	session.UserID = ""
	if err := session.Validate(); err == nil {
		t.Error("Session with empty user ID should have validation error")
	}

	session.UserID = "user-1"
	session.Status = SessionStatus("invalid")
	if err := session.Validate(); err == nil {
		t.Error("Session with invalid status should have validation error")
	}

	session.Status = SessionStatusActive
	session.Mode = SessionMode("karaoke")
	if err := session.Validate(); err == nil {
		t.Error("Session with invalid mode should have validation error")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]CorrectionCategory{
		"Grammar":     CategoryGrammar,
		" tense ":     CategoryConjugation,
		"gender":      CategoryAgreement,
		"word choice": CategoryVocabulary,
		"prosody":     CategoryOther,
	}
	for in, want := range tests {
		if got := NormalizeCategory(in); got != want {
			t.Errorf("NormalizeCategory(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCloneCopiesSummary(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := NewSession("session-1", "user-1", "", "", now)
	session.Summary = &SessionSummary{
		NewVocabulary:    []SummaryVocabulary{{Word: "boulangerie"}},
		GrammarPracticed: []GrammarPoint{{Concept: "passé composé"}},
		Strengths:        []string{"pronunciation"},
		Weaknesses:       []string{"gender agreement"},
		Highlights:       []string{"ordered bread"},
		RecommendedFocus: []string{"articles"},
		Topics:           []string{"shopping"},
	}

	clone := session.Clone()
	clone.Summary.NewVocabulary[0].Word = "pâtisserie"
	clone.Summary.GrammarPracticed[0].Struggled = true
	clone.Summary.Strengths[0] = "x"
	clone.Summary.Weaknesses[0] = "x"
	clone.Summary.Highlights[0] = "x"
	clone.Summary.RecommendedFocus[0] = "x"
	clone.Summary.Topics[0] = "x"

	sum := session.Summary
	if sum.NewVocabulary[0].Word != "boulangerie" {
		t.Errorf("Expected original vocabulary untouched, got %q", sum.NewVocabulary[0].Word)
	}
	if sum.GrammarPracticed[0].Struggled {
		t.Error("Expected original grammar point untouched")
	}
	for name, got := range map[string]string{
		"strengths":         sum.Strengths[0],
		"weaknesses":        sum.Weaknesses[0],
		"highlights":        sum.Highlights[0],
		"recommended focus": sum.RecommendedFocus[0],
		"topics":            sum.Topics[0],
	} {
		if got == "x" {
			t.Errorf("Expected original %s untouched", name)
		}
	}
}
