package entities

import (
	"testing"
	"time"
)

func TestNewProfileDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewProfile("user-1", "Camille", now)

	if p.Level != LevelA1 {
		t.Errorf("Expected level A1, got %s", p.Level)
	}
	if p.Settings.CorrectionStyle != CorrectionStyleGentle {
		t.Errorf("Expected gentle corrections, got %s", p.Settings.CorrectionStyle)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Default profile should be valid, got %v", err)
	}
	if p.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", p.Location())
	}
}

func TestProfileValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"missing user", func(p *Profile) { p.UserID = "" }},
		{"bad level", func(p *Profile) { p.Level = "D1" }},
		{"bad correction style", func(p *Profile) { p.Settings.CorrectionStyle = "harsh" }},
		{"speaking rate too fast", func(p *Profile) { p.Settings.SpeakingRate = 2 }},
		{"unknown timezone", func(p *Profile) { p.Settings.Timezone = "Mars/Olympus" }},
		{"bad practice date", func(p *Profile) { p.LastPracticeDate = "01/03/2026" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfile("user-1", "Camille", time.Now())
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := NewProfile("user-1", "Camille", time.Now())
	p.Weaknesses = append(p.Weaknesses, "subjonctif")
	p.Vocabulary = append(p.Vocabulary, VocabularyEntry{Word: "pomme", Mastery: 1})

	c := p.Clone()
	c.Weaknesses[0] = "passé composé"
	c.Vocabulary[0].Mastery = 5

	if p.Weaknesses[0] != "subjonctif" {
		t.Error("Clone should not share the weaknesses slice")
	}
	if p.Vocabulary[0].Mastery != 1 {
		t.Error("Clone should not share the vocabulary slice")
	}
}

func TestUserValidate(t *testing.T) {
	u := &User{ID: "u1", Email: NormalizeEmail("  Camille@Example.COM "), PasswordHash: "hash"}
	if u.Email != "camille@example.com" {
		t.Errorf("Expected normalized email, got %s", u.Email)
	}
	if err := u.Validate(); err != nil {
		t.Errorf("Expected valid user, got %v", err)
	}
	u.Email = "not-an-email"
	if err := u.Validate(); err == nil {
		t.Error("Expected invalid email error")
	}
}
