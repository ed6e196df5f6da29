// Package achievement scans the static rule table against progression
// counters. Scans are pure and idempotent.
package achievement

import "github.com/Fixen7/lifequest-app/game/progression"

// Unlocked is anything that can answer whether an id is already held.
type Unlocked interface {
	HasAchievement(id string) bool
}

// Evaluator scans a rule table.
type Evaluator struct {
	rules []Achievement
}

// NewEvaluator uses Table when rules is nil.
func NewEvaluator(rules []Achievement) *Evaluator {
	if rules == nil {
		rules = Table
	}
	return &Evaluator{rules: rules}
}

// Scan returns the ids newly unlocked by trigger firing with value. Held
// achievements are never returned again and never revoked.
func (e *Evaluator) Scan(held Unlocked, trigger Trigger, value int) []string {
	var ids []string
	for _, a := range e.rules {
		if a.Trigger != trigger || held.HasAchievement(a.ID) {
			continue
		}
		if value >= a.Threshold {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// ScanAll evaluates every trigger against the ledger counters and the
// number of completed objectives.
func (e *Evaluator) ScanAll(l progression.Ledger, completedObjectives int) []string {
	var ids []string
	ids = append(ids, e.Scan(l, TriggerObjectiveCompleted, completedObjectives)...)
	ids = append(ids, e.Scan(l, TriggerLevel, l.Level)...)
	ids = append(ids, e.Scan(l, TriggerStreak, l.CurrentStreak)...)
	ids = append(ids, e.Scan(l, TriggerPomodoro, l.PomodoroCount)...)
	ids = append(ids, e.Scan(l, TriggerDailyDesire, l.DailyDesireCount)...)
	return ids
}
