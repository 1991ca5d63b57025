package entities

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Level is a CEFR proficiency level
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Valid reports whether l is one of the six CEFR levels
func (l Level) Valid() bool {
	switch l {
	case LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2:
		return true
	}
	return false
}

// CorrectionStyle controls how insistently the tutor corrects mistakes
type CorrectionStyle string

const (
	CorrectionStyleGentle CorrectionStyle = "gentle"
	CorrectionStyleDirect CorrectionStyle = "direct"
	CorrectionStyleOff    CorrectionStyle = "off"
)

// Mastery bounds shared by vocabulary and grammar entries
const (
	MinMastery = 1
	MaxMastery = 5
)

// DateLayout is the calendar-day format used for practice dates
const DateLayout = "2006-01-02"

// VocabularyEntry tracks a single word or expression the learner has met
type VocabularyEntry struct {
	Word           string    `json:"word" bson:"word"`
	Translation    string    `json:"translation,omitempty" bson:"translation,omitempty"`
	Mastery        int       `json:"mastery" bson:"mastery"`
	TimesUsed      int       `json:"times_used" bson:"times_used"`
	TimesCorrected int       `json:"times_corrected" bson:"times_corrected"`
	FirstSeen      time.Time `json:"first_seen" bson:"first_seen"`
	LastSeen       time.Time `json:"last_seen" bson:"last_seen"`
	Example        string    `json:"example,omitempty" bson:"example,omitempty"`
}

// GrammarEntry tracks practice of a grammar concept
type GrammarEntry struct {
	Concept        string    `json:"concept" bson:"concept"`
	Mastery        int       `json:"mastery" bson:"mastery"`
	TimesPracticed int       `json:"times_practiced" bson:"times_practiced"`
	ErrorCount     int       `json:"error_count" bson:"error_count"`
	LastSeen       time.Time `json:"last_seen" bson:"last_seen"`
}

// ProfileSettings holds the learner's tutoring preferences
type ProfileSettings struct {
	CorrectionStyle  CorrectionStyle `json:"correction_style" bson:"correction_style"`
	VoiceID          string          `json:"voice_id,omitempty" bson:"voice_id,omitempty"`
	SpeakingRate     float64         `json:"speaking_rate" bson:"speaking_rate"`
	Timezone         string          `json:"timezone" bson:"timezone"`
	DailyGoalMinutes int             `json:"daily_goal_minutes" bson:"daily_goal_minutes"`
}

// Profile is the persisted learner profile
type Profile struct {
	UserID               string            `json:"user_id" bson:"_id"`
	DisplayName          string            `json:"display_name" bson:"display_name"`
	Level                Level             `json:"level" bson:"level"`
	NativeLanguage       string            `json:"native_language" bson:"native_language"`
	Vocabulary           []VocabularyEntry `json:"vocabulary" bson:"vocabulary"`
	Grammar              []GrammarEntry    `json:"grammar" bson:"grammar"`
	Strengths            []string          `json:"strengths" bson:"strengths"`
	Weaknesses           []string          `json:"weaknesses" bson:"weaknesses"`
	TotalPracticeMinutes int               `json:"total_practice_minutes" bson:"total_practice_minutes"`
	SessionCount         int               `json:"session_count" bson:"session_count"`
	CurrentStreak        int               `json:"current_streak" bson:"current_streak"`
	LongestStreak        int               `json:"longest_streak" bson:"longest_streak"`
	LastPracticeDate     string            `json:"last_practice_date,omitempty" bson:"last_practice_date,omitempty"`
	Settings             ProfileSettings   `json:"settings" bson:"settings"`
	CreatedAt            time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" bson:"updated_at"`
}

// DefaultSettings returns the settings given to a new learner
func DefaultSettings() ProfileSettings {
	return ProfileSettings{
		CorrectionStyle:  CorrectionStyleGentle,
		SpeakingRate:     1.0,
		Timezone:         "UTC",
		DailyGoalMinutes: 10,
	}
}

// NewProfile creates an empty beginner profile for a user
func NewProfile(userID, displayName string, now time.Time) *Profile {
	return &Profile{
		UserID:         userID,
		DisplayName:    displayName,
		Level:          LevelA1,
		NativeLanguage: "en",
		Vocabulary:     make([]VocabularyEntry, 0),
		Grammar:        make([]GrammarEntry, 0),
		Strengths:      make([]string, 0),
		Weaknesses:     make([]string, 0),
		Settings:       DefaultSettings(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Location resolves the profile timezone, falling back to UTC
func (p *Profile) Location() *time.Location {
	if p.Settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy so callers can snapshot a profile before merging
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Vocabulary = slices.Clone(p.Vocabulary)
	c.Grammar = slices.Clone(p.Grammar)
	c.Strengths = slices.Clone(p.Strengths)
	c.Weaknesses = slices.Clone(p.Weaknesses)
	return &c
}

// Validate validates the profile data
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return errors.New("user_id is required")
	}
	if !p.Level.Valid() {
		return fmt.Errorf("invalid level %q", p.Level)
	}
	switch p.Settings.CorrectionStyle {
	case CorrectionStyleGentle, CorrectionStyleDirect, CorrectionStyleOff:
	default:
		return fmt.Errorf("invalid correction style %q", p.Settings.CorrectionStyle)
	}
	if p.Settings.SpeakingRate < 0.7 || p.Settings.SpeakingRate > 1.2 {
		return fmt.Errorf("speaking rate must be between 0.7 and 1.2, got %.2f", p.Settings.SpeakingRate)
	}
	if p.Settings.Timezone != "" {
		if _, err := time.LoadLocation(p.Settings.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", p.Settings.Timezone)
		}
	}
	if p.Settings.DailyGoalMinutes < 0 {
		return errors.New("daily goal must not be negative")
	}
	if p.LastPracticeDate != "" {
		if _, err := time.Parse(DateLayout, p.LastPracticeDate); err != nil {
			return fmt.Errorf("invalid last practice date %q", p.LastPracticeDate)
		}
	}
	return nil
}
