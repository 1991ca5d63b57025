package progress

import (
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

// dayDiff returns b - a in whole calendar days. Both are YYYY-MM-DD.
func dayDiff(a, b string) (int, bool) {
	ta, err := time.Parse(entities.DateLayout, a)
	if err != nil {
		return 0, false
	}
	tb, err := time.Parse(entities.DateLayout, b)
	if err != nil {
		return 0, false
	}
	return int(tb.Sub(ta).Hours() / 24), true
}

// UpdateStreak advances the practice streak for a session on sessionDate.
// A session on the day after the last practice extends the streak, a gap
// resets it to one and an older, late-arriving session leaves it alone.
func UpdateStreak(p *entities.Profile, sessionDate string) {
	diff, ok := dayDiff(p.LastPracticeDate, sessionDate)
	switch {
	case p.LastPracticeDate == "" || !ok:
		p.CurrentStreak = 1
		p.LastPracticeDate = sessionDate
	case diff == 0:
		if p.CurrentStreak < 1 {
			p.CurrentStreak = 1
		}
	case diff == 1:
		p.CurrentStreak++
		p.LastPracticeDate = sessionDate
	case diff > 1:
		p.CurrentStreak = 1
		p.LastPracticeDate = sessionDate
	default:
		// older than the last recorded practice day
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
}

// EffectiveStreak is the streak as shown on the dashboard: it is still alive
// if the learner practiced today or yesterday, otherwise it has lapsed.
func EffectiveStreak(p *entities.Profile, now time.Time) int {
	if p.LastPracticeDate == "" {
		return 0
	}
	today := now.In(p.Location()).Format(entities.DateLayout)
	diff, ok := dayDiff(p.LastPracticeDate, today)
	if !ok || diff > 1 {
		return 0
	}
	return p.CurrentStreak
}
