package achievement

import (
	"testing"

	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range Table {
		require.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
		assert.Positive(t, a.Threshold)
	}
}

func TestScan_MatchesTriggerAndThreshold(t *testing.T) {
	e := NewEvaluator(nil)
	l := progression.NewLedger(progression.StandardDefaults)

	assert.Equal(t, []string{"first_quest"}, e.Scan(l, TriggerObjectiveCompleted, 1))
	assert.ElementsMatch(t, []string{"first_quest", "quest_hunter"}, e.Scan(l, TriggerObjectiveCompleted, 5))
	assert.Empty(t, e.Scan(l, TriggerLevel, 4))
	assert.Equal(t, []string{"level_5"}, e.Scan(l, TriggerLevel, 5))
	assert.Equal(t, []string{"streak_3"}, e.Scan(l, TriggerStreak, 3))
}

func TestScan_Idempotent(t *testing.T) {
	e := NewEvaluator(nil)
	l := progression.NewLedger(progression.StandardDefaults)

	first := e.Scan(l, TriggerPomodoro, 30)
	require.ElementsMatch(t, []string{"pomodoro_1", "pomodoro_25"}, first)
	l = progression.Unlock(l, first...)
	before := append([]string(nil), l.Achievements...)

	second := e.Scan(l, TriggerPomodoro, 30)
	assert.Empty(t, second)
	l = progression.Unlock(l, second...)
	assert.Equal(t, before, l.Achievements)

	// lower values never lock anything
	assert.Empty(t, e.Scan(l, TriggerPomodoro, 0))
	assert.True(t, l.HasAchievement("pomodoro_1"))
}

func TestScanAll(t *testing.T) {
	e := NewEvaluator(nil)
	l := progression.NewLedger(progression.StandardDefaults)
	l.Level = 10
	l.CurrentStreak = 7
	l.DailyDesireCount = 1

	ids := e.ScanAll(l, 1)
	assert.ElementsMatch(t, []string{
		"first_quest", "level_5", "level_10", "streak_3", "streak_7", "desire_1",
	}, ids)

	l = progression.Unlock(l, ids...)
	assert.Empty(t, e.ScanAll(l, 1))
}

func TestLookup(t *testing.T) {
	a, ok := Lookup("streak_7")
	require.True(t, ok)
	assert.Equal(t, TriggerStreak, a.Trigger)
	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestCustomRules(t *testing.T) {
	e := NewEvaluator([]Achievement{{ID: "x", Trigger: TriggerLevel, Threshold: 2}})
	l := progression.NewLedger(progression.StandardDefaults)
	assert.Equal(t, []string{"x"}, e.Scan(l, TriggerLevel, 2))
}
