package progress

import (
	"reflect"
	"testing"
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

func TestTroubleWords(t *testing.T) {
	p := entities.NewProfile("user-1", "", day1)
	p.Vocabulary = []entities.VocabularyEntry{
		{Word: "pomme", Mastery: 4},
		{Word: "fromage", Mastery: 2, TimesCorrected: 1, LastSeen: day1},
		{Word: "boulangerie", Mastery: 4, TimesCorrected: 2},
		{Word: "cuillère", Mastery: 1, TimesCorrected: 3},
		{Word: "bœuf", Mastery: 2, TimesCorrected: 1, LastSeen: day2},
	}

	got := TroubleWords(p, 0)
	var words []string
	for _, w := range got {
		words = append(words, w.Word)
	}
	want := []string{"cuillère", "bœuf", "fromage", "boulangerie"}
	if !reflect.DeepEqual(words, want) {
		t.Errorf("TroubleWords() = %v, want %v", words, want)
	}

	if limited := TroubleWords(p, 2); len(limited) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestAggregateTopics(t *testing.T) {
	market := newSessionWithTurns(day1, 10*time.Minute, 2)
	market.Topic = "Au marché"
	market.Summary = &entities.SessionSummary{Topics: []string{"au marche", "la nourriture"}}

	food := newSessionWithTurns(day2, 5*time.Minute, 1)
	food.Summary = &entities.SessionSummary{Topics: []string{"La nourriture"}}

	empty := newSessionWithTurns(day2, 5*time.Minute, 0)
	empty.Topic = "Au marché"

	active := entities.NewSession("active", "user-1", entities.SessionModeConversation, "au marché", day2)
	active.AddTurn(entities.Turn{
		User:  entities.TranscriptEntry{Role: entities.RoleUser, Text: "bonjour", Timestamp: day2},
		Tutor: entities.TranscriptEntry{Role: entities.RoleTutor, Text: "salut", Timestamp: day2},
	})

	got := AggregateTopics([]*entities.Session{market, food, empty, active})
	if len(got) != 2 {
		t.Fatalf("Expected 2 topics, got %+v", got)
	}
	if got[0].Topic != "la nourriture" || got[0].SessionCount != 2 || got[0].TotalMinutes != 15 {
		t.Errorf("first topic = %+v", got[0])
	}
	if !got[0].LastPracticed.Equal(day2) {
		t.Errorf("LastPracticed = %v, want %v", got[0].LastPracticed, day2)
	}
	if got[1].Topic != "Au marché" || got[1].SessionCount != 1 || got[1].TotalMinutes != 10 {
		t.Errorf("second topic = %+v", got[1])
	}
}

func TestCorrectionBreakdown(t *testing.T) {
	s1 := newSessionWithTurns(day1, time.Minute, 1)
	s1.Corrections = []entities.Correction{
		{Category: entities.CategoryGrammar},
		{Category: "tense"},
		{Category: entities.CategoryConjugation},
	}
	s2 := newSessionWithTurns(day2, time.Minute, 1)
	s2.Corrections = []entities.Correction{
		{Category: "gender"},
		{Category: entities.CategoryGrammar},
		{Category: "made up"},
	}

	got := CorrectionBreakdown([]*entities.Session{s1, s2})
	want := []CategoryCount{
		{Category: entities.CategoryConjugation, Count: 2},
		{Category: entities.CategoryGrammar, Count: 2},
		{Category: entities.CategoryAgreement, Count: 1},
		{Category: entities.CategoryOther, Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CorrectionBreakdown() = %+v, want %+v", got, want)
	}
}

func TestRecommendedFocus(t *testing.T) {
	p := entities.NewProfile("user-1", "", day1)
	p.Level = entities.LevelB1
	p.Weaknesses = []string{"liaisons", "subjonctif"}
	p.Grammar = []entities.GrammarEntry{
		{Concept: "passé composé", Mastery: 4},
		{Concept: "pronoms y et en", Mastery: 2, ErrorCount: 1},
		{Concept: "accord du participe", Mastery: 1, ErrorCount: 3},
	}

	older := newSessionWithTurns(day1, time.Minute, 1)
	older.Summary = &entities.SessionSummary{RecommendedFocus: []string{"vieux conseil"}}
	newer := newSessionWithTurns(day2, time.Minute, 1)
	newer.Summary = &entities.SessionSummary{RecommendedFocus: []string{"Subjonctif", "les nombres"}}

	got := RecommendedFocus(p, []*entities.Session{older, newer}, 0)
	want := []string{"Subjonctif", "les nombres", "liaisons", "accord du participe", "pronoms y et en"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RecommendedFocus() = %v, want %v", got, want)
	}

	if got := RecommendedFocus(p, nil, 2); len(got) != 2 || got[0] != "subjonctif" {
		t.Errorf("RecommendedFocus() with limit = %v", got)
	}
}

func TestRecommendedFocusFallsBackToLevel(t *testing.T) {
	p := entities.NewProfile("user-1", "", day1)
	got := RecommendedFocus(p, nil, 0)
	if !reflect.DeepEqual(got, levelFocus[entities.LevelA1]) {
		t.Errorf("RecommendedFocus() = %v", got)
	}
}

func TestWeeklyActivity(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	sessions := []*entities.Session{
		newSessionWithTurns(time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC), 10*time.Minute, 2),
		newSessionWithTurns(time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC), 5*time.Minute, 1),
		newSessionWithTurns(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 20*time.Minute, 1),
		newSessionWithTurns(time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), 30*time.Minute, 1),
		newSessionWithTurns(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), 30*time.Minute, 0),
	}

	got := WeeklyActivity(sessions, now, nil)
	if len(got) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(got))
	}
	if got[0].Date != "2026-03-01" || got[0].Minutes != 20 {
		t.Errorf("first day = %+v", got[0])
	}
	if got[6].Date != "2026-03-07" || got[6].Minutes != 15 {
		t.Errorf("today = %+v", got[6])
	}
	for _, d := range got[1:6] {
		if d.Minutes != 0 {
			t.Errorf("unexpected minutes on %s: %d", d.Date, d.Minutes)
		}
	}
}
