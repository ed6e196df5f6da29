package player

import (
	"context"
	"time"

	"github.com/Fixen7/lifequest-app/audit"
	"github.com/Fixen7/lifequest-app/game/achievement"
	"github.com/Fixen7/lifequest-app/game/progression"
	"go.uber.org/zap"
)

// Progress reports a ledger change and its side-signals.
type Progress struct {
	Stats          progression.Ledger `json:"stats"`
	LevelUps       []int              `json:"levelUps,omitempty"`
	Unlocked       []string           `json:"unlocked,omitempty"`
	NeedsRest      bool               `json:"needsRest,omitempty"`
	StreakAdvanced bool               `json:"streakAdvanced,omitempty"`
}

// apply runs ev through the progression rules, scans achievements, notifies
// and journals the result, then merge-writes the changed stats fields. The
// local ledger is updated before the write.
func (s *Session) apply(ctx context.Context, ev progression.Event) (Progress, progression.Outcome, error) {
	start := time.Now()
	prev := s.ledger
	next, out := progression.Apply(prev, ev)
	unlocked := s.scan(next, ev, out)
	next = progression.Unlock(next, unlocked...)
	s.ledger = next

	p := Progress{
		Stats:          next.Clone(),
		LevelUps:       out.LevelUps,
		Unlocked:       unlocked,
		NeedsRest:      out.NeedsRest,
		StreakAdvanced: out.StreakAdvanced,
	}
	s.signal(ctx, p)

	err := s.adapter.PushStats(ctx, prev, next)
	if err != nil {
		s.logger.Warn("stats write failed", zap.String("event", ev.Kind()), zap.Error(err))
	}
	s.journal(ctx, ev.Kind(), ev, p, err, start)
	return p, out, err
}

// scan evaluates only the triggers the event fired.
func (s *Session) scan(l progression.Ledger, ev progression.Event, out progression.Outcome) []string {
	var ids []string
	if n := len(out.LevelUps); n > 0 {
		ids = append(ids, s.evaluator.Scan(l, achievement.TriggerLevel, out.LevelUps[n-1])...)
	}
	if out.StreakAdvanced {
		ids = append(ids, s.evaluator.Scan(l, achievement.TriggerStreak, l.CurrentStreak)...)
	}
	switch ev.(type) {
	case progression.ObjectiveCompleted:
		ids = append(ids, s.evaluator.Scan(l, achievement.TriggerObjectiveCompleted, s.quests.CompletedCount())...)
	case progression.PomodoroFinished:
		ids = append(ids, s.evaluator.Scan(l, achievement.TriggerPomodoro, l.PomodoroCount)...)
	case progression.DesireCompleted:
		ids = append(ids, s.evaluator.Scan(l, achievement.TriggerDailyDesire, l.DailyDesireCount)...)
	}
	return ids
}

// signal turns the side-signals into notifications.
func (s *Session) signal(ctx context.Context, p Progress) {
	for _, lvl := range p.LevelUps {
		s.logger.Info("level up", zap.Int("level", lvl))
		s.notify(ctx, Notification{Kind: NotifyLevelUp, Level: lvl})
	}
	for _, id := range p.Unlocked {
		a, ok := achievement.Lookup(id)
		if !ok {
			a = achievement.Achievement{ID: id, Name: id}
		}
		s.logger.Info("achievement unlocked", zap.String("achievement", id))
		s.notify(ctx, Notification{Kind: NotifyAchievement, Achievement: &a})
	}
	if p.NeedsRest {
		s.logger.Info("vitality depleted")
		s.notify(ctx, Notification{Kind: NotifyNeedsRest})
	}
	stats := p.Stats
	s.notify(ctx, Notification{Kind: NotifyStats, Stats: &stats})
}

func (s *Session) journal(ctx context.Context, action string, req, resp any, err error, start time.Time) {
	if s.deps.Journal == nil {
		return
	}
	e := audit.Entry{
		TraceID:  audit.TraceID(ctx),
		UserID:   s.UserID,
		Action:   action,
		Request:  req,
		Response: resp,
		Duration: time.Since(start),
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.deps.Journal.Log(e)
}
