package progression

import (
	"time"

	"github.com/Fixen7/lifequest-app/game/daily"
)

// Event is a discrete completion event fed to Apply.
type Event interface {
	// Kind names the event for logging and the audit journal.
	Kind() string
}

// SubtaskCompleted grants a subtask's reward and counts toward today's streak.
type SubtaskCompleted struct {
	XP, Gold int
	Today    daily.Date
}

// SubtaskUndone reverses exactly what SubtaskCompleted granted.
type SubtaskUndone struct {
	XP, Gold int
}

// ObjectiveCompleted grants an objective's fixed reward.
type ObjectiveCompleted struct {
	XP, Gold int
	Today    daily.Date
}

// DesireCompleted grants the daily desire reward.
type DesireCompleted struct {
	XP, Gold int
	Today    daily.Date
}

// PomodoroFinished grants a focus-session reward and spends vitality.
type PomodoroFinished struct {
	XP, Gold     int
	VitalityCost int
}

// DailyRewardClaimed attempts the 24h reward claim.
type DailyRewardClaimed struct {
	Now      time.Time
	XP, Gold int
}

type SatisfactionRecorded struct {
	Value int
	Today daily.Date
}

type VitalityChanged struct {
	Delta int
}

// Rested restores vitality to its maximum.
type Rested struct{}

type TutorialCompleted struct{}

func (SubtaskCompleted) Kind() string     { return "subtask_completed" }
func (SubtaskUndone) Kind() string        { return "subtask_undone" }
func (ObjectiveCompleted) Kind() string   { return "objective_completed" }
func (DesireCompleted) Kind() string      { return "desire_completed" }
func (PomodoroFinished) Kind() string     { return "pomodoro_finished" }
func (DailyRewardClaimed) Kind() string   { return "daily_reward_claimed" }
func (SatisfactionRecorded) Kind() string { return "satisfaction_recorded" }
func (VitalityChanged) Kind() string      { return "vitality_changed" }
func (Rested) Kind() string               { return "rested" }
func (TutorialCompleted) Kind() string    { return "tutorial_completed" }

// Apply computes the next ledger for ev. It never mutates l's slices.
func Apply(l Ledger, ev Event) (Ledger, Outcome) {
	l = l.Clone()
	var out Outcome

	switch e := ev.(type) {
	case SubtaskCompleted:
		l, out = grant(l, e.XP, e.Gold)
		var s Outcome
		l, s = EvaluateStreak(l, e.Today)
		out.merge(s)

	case SubtaskUndone:
		l = DeductXP(l, e.XP)
		l = DeductGold(l, e.Gold)

	case ObjectiveCompleted:
		l, out = grant(l, e.XP, e.Gold)
		var s Outcome
		l, s = EvaluateStreak(l, e.Today)
		out.merge(s)

	case DesireCompleted:
		l, out = grant(l, e.XP, e.Gold)
		l.DailyDesireCount++
		var s Outcome
		l, s = EvaluateStreak(l, e.Today)
		out.merge(s)

	case PomodoroFinished:
		l, out = grant(l, e.XP, e.Gold)
		l.PomodoroCount++
		var v Outcome
		l, v = AdjustVitality(l, -e.VitalityCost)
		out.merge(v)

	case DailyRewardClaimed:
		l, out = ClaimDailyReward(l, e.Now, e.XP, e.Gold)

	case SatisfactionRecorded:
		l = RecordSatisfaction(l, e.Value, e.Today)

	case VitalityChanged:
		l, out = AdjustVitality(l, e.Delta)

	case Rested:
		l.Vitality = l.MaxVitality

	case TutorialCompleted:
		l.HasCompletedTutorial = true
	}
	return l, out
}

func grant(l Ledger, xp, gold int) (Ledger, Outcome) {
	l, out := GrantXP(l, xp)
	return AddGold(l, gold), out
}
