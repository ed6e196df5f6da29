// Package player runs one single-actor session per user. User commands and
// store snapshots are executed one at a time on the session's loop
// goroutine, so the ledger and the quest store are never shared.
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/audit"
	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/config"
	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/achievement"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
	"github.com/Fixen7/lifequest-app/syncer"
	"go.uber.org/zap"
)

const cmdChanBuf = 64

// ErrSessionClosed is returned for commands sent to a stopped session.
var ErrSessionClosed = fmt.Errorf("player: session closed: %w", apperr.ErrNotReady)

// Assistant is the generative service as seen by a session.
type Assistant interface {
	SuggestSubtasks(ctx context.Context, o quest.Objective, n int) ([]quest.SubtaskInput, error)
	Advice(ctx context.Context, l progression.Ledger) (string, error)
	Illustrate(ctx context.Context, o quest.Objective) (string, error)
}

// Journal records applied progression events.
type Journal interface {
	Log(entry audit.Entry)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Docs      docstore.Store
	Cache     cache.Cache
	PubSub    cache.PubSub
	Journal   Journal               // optional
	Assistant Assistant             // optional
	Desires   daily.DesireGenerator // nil uses the static list
	Gate      *daily.Gate
	Game      config.GameConfig
	Logger    *zap.Logger
}

// Session owns one user's ledger, objectives and daily desire.
type Session struct {
	UserID string

	deps      *Deps
	adapter   *syncer.Adapter
	quests    *quest.Store
	desires   *daily.DesireKeeper
	evaluator *achievement.Evaluator
	defaults  progression.Ledger

	// owned by the loop goroutine
	ledger progression.Ledger

	cmds       chan func()
	ready      chan struct{}
	loadErr    error
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
	logger     *zap.Logger
}

func newSession(userID string, deps *Deps) *Session {
	g := deps.Game
	logger := deps.Logger.With(zap.String("user_id", userID))
	s := &Session{
		UserID:  userID,
		deps:    deps,
		adapter: syncer.New(deps.Docs, userID, deps.Logger),
		quests: quest.NewStore(
			quest.WithRewards(quest.RewardTableFromConfig(g.DifficultyXP)),
			quest.WithClock(deps.Gate.Now),
		),
		desires:   daily.NewDesireKeeper(deps.Desires, logger),
		evaluator: achievement.NewEvaluator(nil),
		defaults: progression.NewLedger(progression.Defaults{
			XPToNextLevel: g.StartXPToNext,
			MaxVitality:   g.StartVitality,
			Satisfaction:  g.StartSatisfaction,
		}),
		cmds:   make(chan func(), cmdChanBuf),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	s.touch()
	return s
}

// start subscribes to the user's documents, loads the state and then runs
// the loop until Close.
func (s *Session) start() {
	go s.run()
}

func (s *Session) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Close()

	// Subscribe first so nothing written between the load and the loop is lost.
	inbound, unsubscribe, err := s.adapter.Subscribe(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	defer unsubscribe()

	if err := s.load(ctx); err != nil {
		s.fail(err)
		return
	}
	close(s.ready)
	s.logger.Info("player session ready",
		zap.Int("level", s.ledger.Level),
		zap.Int("objectives", len(s.quests.Objectives())))

	for {
		select {
		case fn := <-s.cmds:
			fn()
		case in, ok := <-inbound:
			if !ok {
				s.logger.Warn("document subscription ended")
				return
			}
			s.applyInbound(ctx, in)
		case <-s.done:
			return
		}
	}
}

func (s *Session) fail(err error) {
	s.loadErr = fmt.Errorf("%w: %v", apperr.ErrNotReady, err)
	close(s.ready)
	s.logger.Error("player session failed to load", zap.Error(err))
}

func (s *Session) load(ctx context.Context) error {
	st, err := s.adapter.Load(ctx, s.defaults)
	if err != nil {
		return err
	}
	s.ledger = st.Stats

	repaired := make(map[string]quest.Objective)
	for _, o := range st.Objectives {
		for _, c := range s.quests.UpsertObjective(o) {
			repaired[c.ID] = c
		}
	}
	for _, t := range st.Subtasks {
		s.quests.UpsertSubtask(t)
	}
	changed := make([]quest.Objective, 0, len(repaired))
	for _, o := range repaired {
		changed = append(changed, o)
	}
	s.persistRepair(ctx, changed)
	s.catchUpAchievements(ctx)
	s.restoreDesire(ctx)
	return nil
}

// catchUpAchievements unlocks whatever the loaded counters already earn,
// e.g. after progress recorded by another device or a new rule.
func (s *Session) catchUpAchievements(ctx context.Context) {
	ids := s.evaluator.ScanAll(s.ledger, s.quests.CompletedCount())
	if len(ids) == 0 {
		return
	}
	prev := s.ledger
	s.ledger = progression.Unlock(prev, ids...)
	s.signal(ctx, Progress{Stats: s.ledger.Clone(), Unlocked: ids})
	if err := s.adapter.PushStats(ctx, prev, s.ledger); err != nil {
		s.logger.Warn("stats write failed", zap.String("event", "achievement_catch_up"), zap.Error(err))
	}
}

// Ready reports whether the initial load has completed successfully.
func (s *Session) Ready() bool {
	select {
	case <-s.ready:
		return s.loadErr == nil
	default:
		return false
	}
}

// WaitReady blocks until the session has loaded or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.loadErr
	case <-ctx.Done():
		return apperr.ErrNotReady
	}
}

// Close stops the loop. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session stops.
func (s *Session) Done() <-chan struct{} { return s.done }

// IdleSince returns the time of the last command.
func (s *Session) IdleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(s.deps.Gate.Now().UnixNano())
}

// call runs fn on the loop goroutine and waits for its result. The result
// value is returned alongside a store write error, since local state has
// already changed by then.
func call[T any](ctx context.Context, s *Session, fn func() (T, error)) (T, error) {
	var zero T
	if !s.Ready() {
		return zero, apperr.ErrNotReady
	}
	s.touch()

	type result struct {
		v   T
		err error
	}
	reply := make(chan result, 1)
	cmd := func() {
		v, err := fn()
		reply <- result{v, err}
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.v, r.err
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
