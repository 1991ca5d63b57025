package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/parle/adapters/llm"
	"github.com/satriahrh/parle/domain/entities"
)

func newSummaryFixture() *entities.Session {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := entities.NewSession("session-1", "user-1", entities.SessionModeConversation, "voyages", now)
	s.AddTurn(entities.Turn{
		User:  entities.TranscriptEntry{Role: entities.RoleUser, Text: "J'ai allé à Lyon", Timestamp: now},
		Tutor: entities.TranscriptEntry{Role: entities.RoleTutor, Text: "Tu es allé à Lyon ? Super !", Timestamp: now},
		Corrections: []entities.Correction{
			{Original: "j'ai allé", Corrected: "je suis allé", Category: entities.CategoryConjugation},
		},
	})
	s.AddTurn(entities.Turn{
		User:  entities.TranscriptEntry{Role: entities.RoleUser, Text: "J'ai prendu le train", Timestamp: now},
		Tutor: entities.TranscriptEntry{Role: entities.RoleTutor, Text: "Tu as pris le train.", Timestamp: now},
		Corrections: []entities.Correction{
			{Original: "prendu", Corrected: "pris", Category: entities.CategoryConjugation},
			{Original: "la voiture rapide", Corrected: "le TGV", Explanation: "train à grande vitesse", Category: entities.CategoryVocabulary},
		},
	})
	return s
}

func TestSummarizer_Summarize(t *testing.T) {
	model := llm.NewMockLLM("Voici le résumé :\n```json\n" + summaryJSON + "\n```")
	summarizer := NewSummarizer(model, zaptest.NewLogger(t))
	session := newSummaryFixture()

	summary := summarizer.Summarize(context.Background(), session, entities.NewProfile("user-1", "", time.Now()))
	if summary.Heuristic {
		t.Fatal("Expected model summary")
	}
	if len(summary.NewVocabulary) != 1 || len(summary.GrammarPracticed) != 1 || summary.Note != "Bravo !" {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	input := model.Requests()[0].Messages[0].Content
	for _, want := range []string{"Learner: J'ai allé à Lyon", "Tutor: Tu as pris le train.", `"prendu" -> "pris"`, "Topic: voyages"} {
		if !strings.Contains(input, want) {
			t.Errorf("Expected summary input to contain %q", want)
		}
	}
}

func TestSummarizer_FallsBack(t *testing.T) {
	model := llm.NewMockLLM("not json at all")
	model.QueueError(errors.New("timeout"))
	summarizer := NewSummarizer(model, zaptest.NewLogger(t))
	session := newSummaryFixture()

	for i := 0; i < 2; i++ {
		summary := summarizer.Summarize(context.Background(), session, nil)
		if !summary.Heuristic {
			t.Errorf("Call %d: expected heuristic summary", i)
		}
	}
}

func TestHeuristicSummary(t *testing.T) {
	summary := HeuristicSummary(newSummaryFixture())

	if !summary.Heuristic {
		t.Error("Expected Heuristic flag")
	}
	if len(summary.Weaknesses) != 2 || summary.Weaknesses[0] != "verb conjugation" || summary.Weaknesses[1] != "word choice" {
		t.Errorf("Unexpected weaknesses: %v", summary.Weaknesses)
	}
	if len(summary.RecommendedFocus) != 2 {
		t.Errorf("Expected focus to follow weaknesses, got %v", summary.RecommendedFocus)
	}
	if len(summary.NewVocabulary) != 1 || summary.NewVocabulary[0].Word != "le TGV" {
		t.Errorf("Unexpected vocabulary: %+v", summary.NewVocabulary)
	}
	if len(summary.Topics) != 1 || summary.Topics[0] != "voyages" {
		t.Errorf("Unexpected topics: %v", summary.Topics)
	}

	clean := entities.NewSession("s", "u", "", "", time.Now())
	clean.AddTurn(entities.Turn{
		User:  entities.TranscriptEntry{Role: entities.RoleUser, Text: "Bonjour"},
		Tutor: entities.TranscriptEntry{Role: entities.RoleTutor, Text: "Salut"},
	})
	if got := HeuristicSummary(clean); len(got.Weaknesses) != 0 || len(got.Highlights) != 2 {
		t.Errorf("Unexpected summary for clean session: %+v", got)
	}
}
