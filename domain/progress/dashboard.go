package progress

import (
	"sort"
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

// DefaultFocusLimit is the number of focus items shown when callers pass 0
const DefaultFocusLimit = 5

// TroubleWord is a vocabulary item the learner keeps getting wrong
type TroubleWord struct {
	Word           string    `json:"word"`
	Translation    string    `json:"translation,omitempty"`
	Mastery        int       `json:"mastery"`
	TimesCorrected int       `json:"times_corrected"`
	LastSeen       time.Time `json:"last_seen"`
}

// TopicStat aggregates the sessions spent on one topic
type TopicStat struct {
	Topic         string    `json:"topic"`
	SessionCount  int       `json:"session_count"`
	TotalMinutes  int       `json:"total_minutes"`
	LastPracticed time.Time `json:"last_practiced"`
}

// CategoryCount is the number of corrections in one category
type CategoryCount struct {
	Category entities.CorrectionCategory `json:"category"`
	Count    int                         `json:"count"`
}

// DayActivity is the practice credit for one calendar day
type DayActivity struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

// TroubleWords lists weak vocabulary: low mastery or corrected at least once
func TroubleWords(p *entities.Profile, limit int) []TroubleWord {
	var out []TroubleWord
	for _, v := range p.Vocabulary {
		if v.Mastery > 2 && v.TimesCorrected == 0 {
			continue
		}
		out = append(out, TroubleWord{
			Word:           v.Word,
			Translation:    v.Translation,
			Mastery:        v.Mastery,
			TimesCorrected: v.TimesCorrected,
			LastSeen:       v.LastSeen,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Mastery != b.Mastery {
			return a.Mastery < b.Mastery
		}
		if a.TimesCorrected != b.TimesCorrected {
			return a.TimesCorrected > b.TimesCorrected
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.Word < b.Word
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func counted(s *entities.Session) bool {
	return s.Status != entities.SessionStatusActive && s.UserTurnCount() > 0
}

// AggregateTopics groups finished sessions by topic. A session counts once
// per distinct topic, whether it came from the session itself or its summary.
func AggregateTopics(sessions []*entities.Session) []TopicStat {
	byKey := make(map[string]*TopicStat)
	var order []string
	for _, s := range sessions {
		if !counted(s) {
			continue
		}
		candidates := []string{s.Topic}
		if s.Summary != nil {
			candidates = append(candidates, s.Summary.Topics...)
		}
		seen := make(map[string]bool)
		for _, t := range candidates {
			key := FoldTerm(t)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			stat, ok := byKey[key]
			if !ok {
				stat = &TopicStat{Topic: CleanTerm(t)}
				byKey[key] = stat
				order = append(order, key)
			}
			stat.SessionCount++
			stat.TotalMinutes += s.PracticeMinutes()
			if s.StartedAt.After(stat.LastPracticed) {
				stat.LastPracticed = s.StartedAt
			}
		}
	}

	out := make([]TopicStat, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SessionCount != out[j].SessionCount {
			return out[i].SessionCount > out[j].SessionCount
		}
		return out[i].LastPracticed.After(out[j].LastPracticed)
	})
	return out
}

// CorrectionBreakdown counts corrections per category across sessions
func CorrectionBreakdown(sessions []*entities.Session) []CategoryCount {
	counts := make(map[entities.CorrectionCategory]int)
	for _, s := range sessions {
		for _, c := range s.Corrections {
			counts[entities.NormalizeCategory(string(c.Category))]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

var levelFocus = map[entities.Level][]string{
	entities.LevelA1: {"greetings and introductions", "present tense of être and avoir", "numbers and dates"},
	entities.LevelA2: {"passé composé", "daily routines", "asking for directions"},
	entities.LevelB1: {"imparfait vs passé composé", "expressing opinions", "pronouns y and en"},
	entities.LevelB2: {"subjonctif", "debating current events", "relative pronouns"},
	entities.LevelC1: {"nuanced connectors", "idiomatic expressions", "formal register"},
	entities.LevelC2: {"stylistic variation", "regional expressions", "rhetorical structure"},
}

func latestSummary(sessions []*entities.Session) *entities.SessionSummary {
	var latest *entities.Session
	for _, s := range sessions {
		if s.Summary == nil {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil
	}
	return latest.Summary
}

// RecommendedFocus proposes what to practice next: the last summary's advice,
// then the newest weaknesses, then the weakest grammar concepts.
func RecommendedFocus(p *entities.Profile, sessions []*entities.Session, limit int) []string {
	if limit <= 0 {
		limit = DefaultFocusLimit
	}
	var candidates []string
	if s := latestSummary(sessions); s != nil {
		candidates = append(candidates, s.RecommendedFocus...)
	}
	for i := len(p.Weaknesses) - 1; i >= 0; i-- {
		candidates = append(candidates, p.Weaknesses[i])
	}

	grammar := make([]entities.GrammarEntry, 0, len(p.Grammar))
	for _, g := range p.Grammar {
		if g.Mastery <= 2 {
			grammar = append(grammar, g)
		}
	}
	sort.SliceStable(grammar, func(i, j int) bool {
		if grammar[i].Mastery != grammar[j].Mastery {
			return grammar[i].Mastery < grammar[j].Mastery
		}
		return grammar[i].ErrorCount > grammar[j].ErrorCount
	})
	for _, g := range grammar {
		candidates = append(candidates, g.Concept)
	}

	out := MergeTerms(nil, candidates, 0)
	if len(out) == 0 {
		out = append(out, levelFocus[p.Level]...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// WeeklyActivity returns practice minutes for the seven days ending today,
// oldest first
func WeeklyActivity(sessions []*entities.Session, now time.Time, loc *time.Location) []DayActivity {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	days := make([]DayActivity, 7)
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		d := today.AddDate(0, 0, i-6).Format(entities.DateLayout)
		days[i] = DayActivity{Date: d}
		index[d] = i
	}
	for _, s := range sessions {
		if !counted(s) {
			continue
		}
		if i, ok := index[SessionDate(s, loc)]; ok {
			days[i].Minutes += s.PracticeMinutes()
		}
	}
	return days
}
