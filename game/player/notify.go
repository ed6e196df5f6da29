package player

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/game/achievement"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/progression"
	"go.uber.org/zap"
)

// BacklogSize caps the per-user notification history.
const BacklogSize = 50

type NotificationKind string

const (
	NotifyLevelUp      NotificationKind = "level_up"
	NotifyAchievement  NotificationKind = "achievement"
	NotifyNeedsRest    NotificationKind = "needs_rest"
	NotifyStreakAtRisk NotificationKind = "streak_at_risk"
	NotifyDesire       NotificationKind = "daily_desire"
	NotifyStats        NotificationKind = "stats" // not kept in the backlog
)

// Notification is pushed to the user's stream.
type Notification struct {
	Kind        NotificationKind         `json:"kind"`
	Level       int                      `json:"level,omitempty"`
	Streak      int                      `json:"streak,omitempty"`
	Achievement *achievement.Achievement `json:"achievement,omitempty"`
	Desire      *daily.Desire            `json:"desire,omitempty"`
	Stats       *progression.Ledger      `json:"stats,omitempty"`
	At          time.Time                `json:"at"`
}

// NotifyChannel is the pub/sub channel carrying a user's notifications.
func NotifyChannel(userID string) string { return "notify:" + userID }

func backlogKey(userID string) string { return "notifications:" + userID }

// notify publishes n and appends it to the backlog. Failures are logged
// only; a lost notification never fails the operation.
func (s *Session) notify(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	n.At = s.deps.Gate.Now()
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}
	if n.Kind != NotifyStats {
		key := backlogKey(s.UserID)
		if err := s.deps.Cache.LPush(ctx, key, string(data)); err != nil {
			s.logger.Warn("notification backlog push failed", zap.Error(err))
		} else if err := s.deps.Cache.LTrim(ctx, key, 0, BacklogSize-1); err != nil {
			s.logger.Warn("notification backlog trim failed", zap.Error(err))
		}
	}
	if err := s.deps.PubSub.Publish(ctx, NotifyChannel(s.UserID), string(data)); err != nil {
		s.logger.Warn("notification publish failed",
			zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

// Backlog returns up to limit of the user's latest notifications, newest
// first. Entries that fail to decode are skipped.
func Backlog(ctx context.Context, c cache.Cache, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > BacklogSize {
		limit = BacklogSize
	}
	raw, err := c.LRange(ctx, backlogKey(userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if json.Unmarshal([]byte(r), &n) == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// DecodeNotification parses a pub/sub payload published by notify.
func DecodeNotification(payload string) (Notification, error) {
	var n Notification
	err := json.Unmarshal([]byte(payload), &n)
	return n, err
}
