package player

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RolloverChannel carries the day of each rollover to every instance.
	RolloverChannel = "rollover"

	rolloverLockTTL = 26 * time.Hour
)

// SessionManager maintains the registry of live sessions, one per user.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session // userID → session
	deps       *Deps
	instanceID string
	logger     *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(deps *Deps) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		deps:       deps,
		instanceID: uuid.NewString(),
		logger:     deps.Logger,
	}
}

// Acquire returns the user's session, starting it on first use, and waits
// until it has loaded. A session that failed to load is discarded so the
// next call retries.
func (sm *SessionManager) Acquire(ctx context.Context, userID string) (*Session, error) {
	s := sm.getOrStart(userID)
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (sm *SessionManager) getOrStart(userID string) *Session {
	sm.mu.RLock()
	s, ok := sm.sessions[userID]
	sm.mu.RUnlock()
	if ok {
		return s
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[userID]; ok {
		return s
	}
	s = newSession(userID, sm.deps)
	sm.sessions[userID] = s
	s.start()
	go sm.watch(s)
	sm.logger.Info("player session started", zap.String("user_id", userID))
	return s
}

// watch unregisters s once its loop has stopped.
func (sm *SessionManager) watch(s *Session) {
	<-s.Done()
	sm.mu.Lock()
	if sm.sessions[s.UserID] == s {
		delete(sm.sessions, s.UserID)
	}
	sm.mu.Unlock()
	sm.logger.Info("player session stopped", zap.String("user_id", s.UserID))
}

// Get returns the session for a user, or nil if none is live.
func (sm *SessionManager) Get(userID string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[userID]
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot slice of all live sessions.
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// SweepIdle closes sessions with no command for longer than maxIdle and
// returns how many were closed.
func (sm *SessionManager) SweepIdle(maxIdle time.Duration) int {
	cutoff := sm.deps.Gate.Now().Add(-maxIdle)
	n := 0
	for _, s := range sm.All() {
		if s.IdleSince().Before(cutoff) {
			s.Close()
			n++
		}
	}
	if n > 0 {
		sm.logger.Info("idle sessions closed", zap.Int("count", n))
	}
	return n
}

// Rollover announces a new day. Only the instance that wins the per-day
// lock publishes; every instance refreshes its own sessions when the
// announcement arrives through ListenRollover.
func (sm *SessionManager) Rollover(ctx context.Context) error {
	day := sm.deps.Gate.Today()
	won, err := sm.deps.Cache.SetNX(ctx, "lock:rollover:"+day.String(), sm.instanceID, rolloverLockTTL)
	if err != nil {
		return err
	}
	if !won {
		sm.logger.Debug("rollover already announced", zap.String("day", day.String()))
		return nil
	}
	sm.logger.Info("announcing daily rollover", zap.String("day", day.String()))
	return sm.deps.PubSub.Publish(ctx, RolloverChannel, day.String())
}

// ListenRollover refreshes every live session for each announced day until
// ctx is done.
func (sm *SessionManager) ListenRollover(ctx context.Context) error {
	msgs, cancel, err := sm.deps.PubSub.Subscribe(ctx, RolloverChannel)
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				sm.refreshAll(ctx, m.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (sm *SessionManager) refreshAll(ctx context.Context, day string) {
	var wg sync.WaitGroup
	for _, s := range sm.All() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.rollover(ctx); err != nil {
				sm.logger.Warn("session rollover failed",
					zap.String("user_id", s.UserID), zap.String("day", day), zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
}

// CloseAllSessions closes every session and waits for them to stop.
func (sm *SessionManager) CloseAllSessions() {
	sessions := sm.All()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
}
