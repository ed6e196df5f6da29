package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	// ErrUnknownTask is returned by RunNow for a name nothing registered.
	ErrUnknownTask = errors.New("scheduler: unknown task")
	// ErrStillRunning is returned when a run is requested while the
	// previous one has not finished.
	ErrStillRunning = errors.New("scheduler: task still running")
)

// Job is one unit of scheduled work. Its context ends when the run times
// out or the scheduler stops.
type Job func(ctx context.Context) error

type Kind string

const (
	KindCron   Kind = "cron"
	KindTicker Kind = "ticker"
)

// Status describes a registered task.
type Status struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Spec      string    `json:"spec"`
	Next      time.Time `json:"next"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`
}

type task struct {
	name    string
	kind    Kind
	spec    string
	job     Job
	running atomic.Bool

	cronID cron.EntryID
	stop   chan struct{} // ticker only

	mu      sync.Mutex
	next    time.Time // ticker only; cron asks the cron runner
	lastRun time.Time
	lastErr error
	runs    int
	skipped int
}

// Scheduler runs named cron and ticker jobs. A job never overlaps itself:
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

// New creates a Scheduler. Cron expressions are evaluated in loc (nil means
// time.Local) and every run is bounded by timeout (zero means one minute).
func New(logger *zap.Logger, loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithLocation(loc))
	c.Start()
	return &Scheduler{
		tasks:   make(map[string]*task),
		cron:    c,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddCron registers job under a standard five-field cron expression
// ("0 0 * * *" is midnight in the scheduler's location). A task with the
// same name is replaced.
func (s *Scheduler) AddCron(name, spec string, job Job) error {
	t := &task{name: name, kind: KindCron, spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, t) })
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	t.cronID = id

	s.mu.Lock()
	s.removeLocked(name)
	s.tasks[name] = t
	s.mu.Unlock()
	s.logger.Info("cron task registered", zap.String("name", name), zap.String("spec", spec))
	return nil
}

// AddTicker registers job to run every interval. A task with the same name
// is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, job Job) {
	t := &task{
		name: name,
		kind: KindTicker,
		spec: interval.String(),
		job:  job,
		stop: make(chan struct{}),
		next: time.Now().Add(interval),
	}

	s.mu.Lock()
	s.removeLocked(name)
	s.tasks[name] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				t.mu.Lock()
				t.next = now.Add(interval)
				t.mu.Unlock()
				_ = s.run(s.ctx, t)
			case <-t.stop:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("ticker task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// RunNow runs a registered task immediately and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

func (s *Scheduler) run(parent context.Context, t *task) (err error) {
	if !t.running.CompareAndSwap(false, true) {
		t.mu.Lock()
		t.skipped++
		t.mu.Unlock()
		s.logger.Warn("scheduler task still running, skipped", zap.String("task", t.name))
		return ErrStillRunning
	}
	defer t.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.name), zap.Any("recover", r), zap.Stack("stack"))
			err = fmt.Errorf("scheduler: %s panicked: %v", t.name, r)
		}
		t.mu.Lock()
		t.lastRun = start
		t.lastErr = err
		t.runs++
		t.mu.Unlock()
		if err != nil {
			s.logger.Error("scheduler task failed", zap.String("task", t.name),
				zap.Duration("took", time.Since(start)), zap.Error(err))
		}
	}()
	return t.job(ctx)
}

// Remove stops and forgets a task.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	t, ok := s.tasks[name]
	if !ok {
		return
	}
	delete(s.tasks, name)
	switch t.kind {
	case KindCron:
		s.cron.Remove(t.cronID)
	case KindTicker:
		close(t.stop)
	}
}

// Stop stops every task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.wg.Wait()
	})
}

// Tasks returns the status of every registered task ordered by name.
func (s *Scheduler) Tasks() []Status {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(tasks))
	for _, t := range tasks {
		st := Status{Name: t.name, Kind: t.kind, Spec: t.spec}
		if t.kind == KindCron {
			st.Next = s.cron.Entry(t.cronID).Next
		}
		t.mu.Lock()
		if t.kind == KindTicker {
			st.Next = t.next
		}
		st.LastRun = t.lastRun
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		st.Runs = t.runs
		st.Skipped = t.skipped
		t.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Next returns the next activation time of a task.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	for _, st := range s.Tasks() {
		if st.Name == name {
			return st.Next, true
		}
	}
	return time.Time{}, false
}
