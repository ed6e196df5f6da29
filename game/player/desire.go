package player

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/progression"
	"go.uber.org/zap"
)

// desireTTL keeps yesterday's desire around until the rollover replaces it.
const desireTTL = 48 * time.Hour

func desireKey(userID string) string { return "desire:" + userID }

// DesireOutcome is the result of CompleteDesire.
type DesireOutcome struct {
	Desire   daily.Desire `json:"desire"`
	Progress Progress     `json:"progress"`
}

// DailyDesire returns today's desire, generating it at most once per day.
// Concurrent callers share one in-flight generation. Generation runs
// outside the loop so slow generation never delays other commands.
func (s *Session) DailyDesire(ctx context.Context) (daily.Desire, error) {
	if !s.Ready() {
		return daily.Desire{}, apperr.ErrNotReady
	}
	s.touch()
	today := s.deps.Gate.Today()
	d, generated, err := s.desires.Ensure(ctx, today)
	if err != nil {
		return d, err
	}
	if generated {
		s.saveDesire(ctx, d)
		s.notify(ctx, Notification{Kind: NotifyDesire, Desire: &d})
	}
	return d, nil
}

// CompleteDesire completes today's desire once and grants its reward.
func (s *Session) CompleteDesire(ctx context.Context) (DesireOutcome, error) {
	return call(ctx, s, func() (DesireOutcome, error) {
		today := s.deps.Gate.Today()
		d, err := s.desires.Complete(today)
		switch {
		case errors.Is(err, daily.ErrNoDesire), errors.Is(err, daily.ErrDesireCompleted):
			return DesireOutcome{}, apperr.Invalid("desire", err.Error())
		case err != nil:
			return DesireOutcome{}, err
		}
		s.saveDesire(ctx, d)
		p, _, err := s.apply(ctx, progression.DesireCompleted{XP: d.XPReward, Gold: d.GoldReward, Today: today})
		return DesireOutcome{Desire: d, Progress: p}, err
	})
}

func (s *Session) saveDesire(ctx context.Context, d daily.Desire) {
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.deps.Cache.Set(context.WithoutCancel(ctx), desireKey(s.UserID), string(data), desireTTL); err != nil {
		s.logger.Warn("caching daily desire failed", zap.Error(err))
	}
}

// restoreDesire reinstalls a desire cached by an earlier session so that a
// restart neither regenerates nor re-grants it.
func (s *Session) restoreDesire(ctx context.Context) {
	raw, err := s.deps.Cache.Get(ctx, desireKey(s.UserID))
	if err != nil {
		if !cache.IsNotFound(err) {
			s.logger.Warn("reading cached desire failed", zap.Error(err))
		}
		return
	}
	var d daily.Desire
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.logger.Warn("discarding malformed cached desire", zap.Error(err))
		return
	}
	s.desires.Restore(d)
}

// rollover runs at the start of a new day: it warns about a streak that
// lapses unless something is completed today, then refreshes the desire.
func (s *Session) rollover(ctx context.Context) error {
	l, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	today := s.deps.Gate.Today()
	if l.CurrentStreak > 0 && l.LastStreakDate == today.AddDays(-1) {
		s.notify(ctx, Notification{Kind: NotifyStreakAtRisk, Streak: l.CurrentStreak})
	}
	_, err = s.DailyDesire(ctx)
	return err
}
