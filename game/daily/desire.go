package daily

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/Fixen7/lifequest-app/apperr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Desire is the single ephemeral mini-task of a calendar day.
type Desire struct {
	Text             string `json:"text"`
	XPReward         int    `json:"xpReward"`
	GoldReward       int    `json:"goldReward"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	Date             Date   `json:"date"`
	Completed        bool   `json:"completed"`
}

// Validate rejects malformed desires, typically from the generative service.
func (d Desire) Validate() error {
	switch {
	case strings.TrimSpace(d.Text) == "":
		return apperr.Invalid("text", "is required")
	case d.XPReward < 0:
		return apperr.Invalid("xpReward", "must not be negative")
	case d.GoldReward < 0:
		return apperr.Invalid("goldReward", "must not be negative")
	case d.TimeLimitMinutes <= 0:
		return apperr.Invalid("timeLimitMinutes", "must be positive")
	}
	return nil
}

// DesireGenerator produces a desire for the given day.
type DesireGenerator interface {
	Desire(ctx context.Context, day Date) (Desire, error)
}

// StaticDesires picks deterministically from a fixed list.
type StaticDesires []Desire

// DefaultDesires is used when no generative service is configured or it fails.
var DefaultDesires = StaticDesires{
	{Text: "Take a 20 minute walk without your phone", XPReward: 30, GoldReward: 10, TimeLimitMinutes: 20},
	{Text: "Drink a glass of water and stretch for 5 minutes", XPReward: 15, GoldReward: 5, TimeLimitMinutes: 10},
	{Text: "Write down three things that went well today", XPReward: 20, GoldReward: 8, TimeLimitMinutes: 15},
	{Text: "Tidy your desk", XPReward: 20, GoldReward: 6, TimeLimitMinutes: 15},
	{Text: "Read ten pages of a book", XPReward: 25, GoldReward: 8, TimeLimitMinutes: 30},
	{Text: "Cook something you have never cooked before", XPReward: 40, GoldReward: 15, TimeLimitMinutes: 60},
	{Text: "Message a friend you have not talked to in a while", XPReward: 25, GoldReward: 10, TimeLimitMinutes: 15},
}

func (s StaticDesires) Desire(_ context.Context, day Date) (Desire, error) {
	if len(s) == 0 {
		return Desire{}, errors.New("no static desires")
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(day))
	d := s[int(h.Sum32()%uint32(len(s)))]
	d.Date = day
	d.Completed = false
	return d, nil
}

// ErrNoDesire is returned when completing a desire that is not live today.
var ErrNoDesire = errors.New("no daily desire for today")

// ErrDesireCompleted is returned when today's desire was already claimed.
var ErrDesireCompleted = errors.New("daily desire already completed")

// DesireKeeper holds the live desire. A desire generated for a day is never
// replaced until the day rolls over, and at most one generation per day is
// in flight at any time.
type DesireKeeper struct {
	mu       sync.Mutex
	current  *Desire
	flight   singleflight.Group
	gen      DesireGenerator
	fallback DesireGenerator
	logger   *zap.Logger
}

// NewDesireKeeper creates a keeper. gen may be nil, in which case the
// static fallback list is used directly.
func NewDesireKeeper(gen DesireGenerator, logger *zap.Logger) *DesireKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DesireKeeper{
		gen:      gen,
		fallback: DefaultDesires,
		logger:   logger,
	}
}

// Restore installs a previously persisted desire (e.g. from a snapshot).
// A stale desire from an earlier day is accepted; Ensure supersedes it.
func (k *DesireKeeper) Restore(d Desire) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if d.Date.IsZero() {
		return
	}
	k.current = &d
}

// Ensure returns today's desire, generating it if the live one is from an
// earlier day. Concurrent callers for the same day share one generation;
// generated is true only for the caller whose call installed it.
func (k *DesireKeeper) Ensure(ctx context.Context, today Date) (d Desire, generated bool, err error) {
	if d, ok := k.today(today); ok {
		return d, false, nil
	}
	var installed bool
	ch := k.flight.DoChan(today.String(), func() (any, error) {
		if d, ok := k.today(today); ok {
			return d, nil
		}
		d, err := k.generate(context.WithoutCancel(ctx), today)
		if err != nil {
			return Desire{}, err
		}
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.current == nil || k.current.Date != today {
			k.current = &d
			installed = true
		}
		return *k.current, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Desire{}, false, res.Err
		}
		return res.Val.(Desire), installed, nil
	case <-ctx.Done():
		return Desire{}, false, ctx.Err()
	}
}

func (k *DesireKeeper) today(today Date) (Desire, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == nil || k.current.Date != today {
		return Desire{}, false
	}
	return *k.current, true
}

func (k *DesireKeeper) generate(ctx context.Context, today Date) (Desire, error) {
	if k.gen != nil {
		d, err := k.gen.Desire(ctx, today)
		if err == nil {
			err = d.Validate()
		}
		if err == nil {
			d.Date = today
			d.Completed = false
			return d, nil
		}
		k.logger.Warn("desire generation failed, using fallback",
			zap.String("day", today.String()), zap.Error(err))
	}
	return k.fallback.Desire(ctx, today)
}

// Complete marks today's desire as done and returns it. It fails when the
// live desire belongs to another day or was already completed.
func (k *DesireKeeper) Complete(today Date) (Desire, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == nil || k.current.Date != today {
		return Desire{}, ErrNoDesire
	}
	if k.current.Completed {
		return Desire{}, ErrDesireCompleted
	}
	k.current.Completed = true
	return *k.current, nil
}
