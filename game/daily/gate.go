package daily

import "time"

const dateLayout = "2006-01-02"

// RewardInterval is the strict wall-clock cooldown of the daily reward.
const RewardInterval = 24 * time.Hour

// Date is a calendar day ("2006-01-02") in the user's time zone.
// The empty Date means "never".
type Date string

// DateOf returns the calendar day containing t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return Date(t.In(loc).Format(dateLayout))
}

func (d Date) IsZero() bool { return d == "" }

func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

// AddDays shifts the date by n calendar days. Calendar arithmetic is done in
// UTC so DST transitions never skip or repeat a day.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, n).Format(dateLayout))
}

func (d Date) String() string { return string(d) }

// Gate resolves calendar-day boundaries for streaks, satisfaction
// bucketing and daily desire freshness.
type Gate struct {
	clock Clock
	loc   *time.Location
}

func NewGate(clock Clock, loc *time.Location) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Gate{clock: clock, loc: loc}
}

func (g *Gate) Now() time.Time           { return g.clock.Now() }
func (g *Gate) Location() *time.Location { return g.loc }
func (g *Gate) Today() Date              { return DateOf(g.clock.Now(), g.loc) }
func (g *Gate) Yesterday() Date          { return g.Today().AddDays(-1) }

// StreakStep is the effect a qualifying completion on a given day has on
// the streak counter.
type StreakStep int

const (
	StreakUnchanged StreakStep = iota // already counted today
	StreakContinued                   // last counted yesterday
	StreakReset                       // gap or first time
)

// StreakStepFor classifies today's completion relative to the last counted day.
func StreakStepFor(last, today Date) StreakStep {
	switch {
	case last == today:
		return StreakUnchanged
	case !last.IsZero() && last.AddDays(1) == today:
		return StreakContinued
	default:
		return StreakReset
	}
}

// RewardCooldown returns how long until the daily reward may be claimed
// again; zero means it is available now.
func RewardCooldown(last, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= RewardInterval {
		return 0
	}
	return RewardInterval - elapsed
}
