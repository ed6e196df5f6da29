package daily

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOf_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	instant := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) // 05:00 next day in JST
	assert.Equal(t, Date("2026-03-01"), DateOf(instant, time.UTC))
	assert.Equal(t, Date("2026-03-02"), DateOf(instant, tokyo))
}

func TestDate_AddDays(t *testing.T) {
	assert.Equal(t, Date("2026-03-01"), Date("2026-02-28").AddDays(1))
	assert.Equal(t, Date("2024-02-29"), Date("2024-03-01").AddDays(-1))
	assert.Equal(t, Date("2027-01-01"), Date("2026-12-31").AddDays(1))
	assert.True(t, Date("2026-12-31").Valid())
	assert.False(t, Date("yesterday").Valid())
}

func TestGate_TodayYesterday(t *testing.T) {
	clock := NewFixedClock(time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC))
	g := NewGate(clock, time.UTC)
	assert.Equal(t, Date("2026-10-16"), g.Today())
	assert.Equal(t, Date("2026-10-15"), g.Yesterday())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, Date("2026-10-17"), g.Today())
}

func TestStreakStepFor(t *testing.T) {
	today := Date("2026-10-16")
	assert.Equal(t, StreakUnchanged, StreakStepFor(today, today))
	assert.Equal(t, StreakContinued, StreakStepFor(today.AddDays(-1), today))
	assert.Equal(t, StreakReset, StreakStepFor(today.AddDays(-2), today))
	assert.Equal(t, StreakReset, StreakStepFor("", today))
}

func TestRewardCooldown(t *testing.T) {
	t0 := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	assert.Zero(t, RewardCooldown(time.Time{}, t0))

	remaining := RewardCooldown(t0, t0.Add(23*time.Hour+59*time.Minute))
	assert.Equal(t, time.Minute, remaining)

	assert.Zero(t, RewardCooldown(t0, t0.Add(24*time.Hour)))
	// clock moved backwards: full interval remains
	assert.Equal(t, RewardInterval, RewardCooldown(t0, t0.Add(-time.Hour)))
}
