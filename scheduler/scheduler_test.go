package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T, timeout time.Duration) *Scheduler {
	t.Helper()
	l, _ := zap.NewDevelopment()
	s := New(l, time.UTC, timeout)
	t.Cleanup(s.Stop)
	return s
}

func counter(n *int32) Job {
	return func(context.Context) error {
		atomic.AddInt32(n, 1)
		return nil
	}
}

func statusOf(t *testing.T, s *Scheduler, name string) Status {
	t.Helper()
	for _, st := range s.Tasks() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("task %q not registered", name)
	return Status{}
}

func TestAddTicker_Fires(t *testing.T) {
	s := newScheduler(t, 0)

	var count int32
	s.AddTicker("idle_sweep", 20*time.Millisecond, counter(&count))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&count) >= 3 },
		time.Second, 10*time.Millisecond)

	st := statusOf(t, s, "idle_sweep")
	assert.Equal(t, KindTicker, st.Kind)
	assert.Equal(t, "20ms", st.Spec)
	assert.GreaterOrEqual(t, st.Runs, 3)
	assert.False(t, st.LastRun.IsZero())
	assert.True(t, st.Next.After(st.LastRun))
}

func TestAddTicker_Replaces(t *testing.T) {
	s := newScheduler(t, 0)

	var first, second int32
	s.AddTicker("task", 20*time.Millisecond, counter(&first))
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, counter(&second))
	time.Sleep(60 * time.Millisecond)

	snap := atomic.LoadInt32(&first)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&first), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&second))
	assert.Len(t, s.Tasks(), 1)
}

func TestRunNow_RecordsOutcome(t *testing.T) {
	s := newScheduler(t, 0)
	boom := errors.New("store unavailable")

	fail := true
	require.NoError(t, s.AddCron("daily_rollover", "1 0 * * *", func(context.Context) error {
		if fail {
			return boom
		}
		return nil
	}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "daily_rollover"), boom)
	st := statusOf(t, s, "daily_rollover")
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, "store unavailable", st.LastError)

	fail = false
	require.NoError(t, s.RunNow(context.Background(), "daily_rollover"))
	st = statusOf(t, s, "daily_rollover")
	assert.Equal(t, 2, st.Runs)
	assert.Empty(t, st.LastError)

	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownTask)
}

func TestRun_NeverOverlaps(t *testing.T) {
	s := newScheduler(t, 0)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.AddCron("slow", "0 0 * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrStillRunning)
	close(release)
	require.NoError(t, <-done)

	st := statusOf(t, s, "slow")
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.Skipped)
}

func TestRun_Timeout(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond)

	require.NoError(t, s.AddCron("stuck", "0 0 * * *", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "stuck"), context.DeadlineExceeded)
}

func TestRun_PanicBecomesError(t *testing.T) {
	s := newScheduler(t, 0)

	var calls int32
	s.AddTicker("panic", 20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		panic("oops")
	})
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 },
		time.Second, 10*time.Millisecond, "ticker keeps running after a panic")
	assert.Contains(t, statusOf(t, s, "panic").LastError, "oops")
}

func TestRemove(t *testing.T) {
	s := newScheduler(t, 0)

	var ticks int32
	s.AddTicker("tick", 20*time.Millisecond, counter(&ticks))
	require.NoError(t, s.AddCron("daily_rollover", "0 0 * * *", counter(new(int32))))
	time.Sleep(50 * time.Millisecond)

	s.Remove("tick")
	s.Remove("daily_rollover")
	s.Remove("nope")

	snap := atomic.LoadInt32(&ticks)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&ticks), "ticker must stop after Remove")
	assert.Empty(t, s.Tasks())
	assert.Empty(t, s.cron.Entries())
	_, ok := s.Next("daily_rollover")
	assert.False(t, ok)
}

func TestStop_Idempotent(t *testing.T) {
	l, _ := zap.NewDevelopment()
	s := New(l, nil, 0)

	var c int32
	s.AddTicker("a", 20*time.Millisecond, counter(&c))
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop()
	snap := atomic.LoadInt32(&c)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&c))
}

func TestStop_CancelsRunningJob(t *testing.T) {
	l, _ := zap.NewDevelopment()
	s := New(l, time.UTC, time.Hour)

	started := make(chan struct{})
	var cancelled atomic.Bool
	s.AddTicker("long", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	<-started
	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestTasks_SortedByName(t *testing.T) {
	s := newScheduler(t, 0)

	s.AddTicker("idle_sweep", time.Hour, counter(new(int32)))
	require.NoError(t, s.AddCron("daily_rollover", "1 0 * * *", counter(new(int32))))

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "daily_rollover", tasks[0].Name)
	assert.Equal(t, KindCron, tasks[0].Kind)
	assert.Equal(t, "idle_sweep", tasks[1].Name)
	assert.Zero(t, tasks[1].Runs)
}

func TestAddCron_NextRun(t *testing.T) {
	s := newScheduler(t, 0)

	require.NoError(t, s.AddCron("daily_rollover", "0 0 * * *", counter(new(int32))))
	next, ok := s.Next("daily_rollover")
	require.True(t, ok)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, time.UTC, next.Location())
}

func TestAddCron_InvalidSpec(t *testing.T) {
	s := newScheduler(t, 0)
	assert.Error(t, s.AddCron("bad", "not a cron", counter(new(int32))))
	_, ok := s.Next("bad")
	assert.False(t, ok)
}

func TestAddCron_ReplaceKeepsOneEntry(t *testing.T) {
	s := newScheduler(t, 0)
	require.NoError(t, s.AddCron("r", "0 0 * * *", counter(new(int32))))
	require.NoError(t, s.AddCron("r", "30 6 * * *", counter(new(int32))))
	assert.Len(t, s.cron.Entries(), 1)
	next, _ := s.Next("r")
	assert.Equal(t, 6, next.Hour())
}
