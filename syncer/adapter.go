// Package syncer mirrors a player's ledger, objectives and subtasks into the
// document store and turns store snapshots back into domain values.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Kind classifies an inbound snapshot.
type Kind int

const (
	KindStats Kind = iota + 1
	KindObjective
	KindSubtask
)

func (k Kind) String() string {
	switch k {
	case KindStats:
		return "stats"
	case KindObjective:
		return "objective"
	case KindSubtask:
		return "subtask"
	default:
		return "unknown"
	}
}

// Inbound is a remote change to one of the user's documents.
type Inbound struct {
	Kind        Kind
	ObjectiveID string
	SubtaskID   string
	Deleted     bool
	Fields      docstore.Fields
}

// State is everything Load reads for a user.
type State struct {
	Stats      progression.Ledger
	Objectives []quest.Objective
	Subtasks   []quest.Subtask
}

// Adapter performs the store reads and writes for a single user.
type Adapter struct {
	store  docstore.Store
	user   string
	echoes *echoFilter
	logger *zap.Logger
}

func New(store docstore.Store, user string, logger *zap.Logger) *Adapter {
	return &Adapter{
		store:  store,
		user:   user,
		echoes: newEchoFilter(),
		logger: logger.With(zap.String("user_id", user)),
	}
}

func (a *Adapter) User() string { return a.user }

// Load reads the stats document, creating it from defaults on first access,
// then every objective and its subtasks.
func (a *Adapter) Load(ctx context.Context, defaults progression.Ledger) (State, error) {
	var st State
	path := StatsPath(a.user)

	fields, err := a.store.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		enc, encErr := Encode(defaults)
		if encErr != nil {
			return st, encErr
		}
		a.echoes.expect(path, enc)
		err = a.store.Create(ctx, path, enc)
		switch {
		case err == nil:
			a.logger.Info("created player stats", zap.String("path", path))
			fields = enc
		case errors.Is(err, docstore.ErrAlreadyExists):
			a.echoes.forget(path)
			fields, err = a.store.Get(ctx, path)
		default:
			a.echoes.forget(path)
			return st, &apperr.StoreWriteError{Op: "create", Path: path, Err: err}
		}
	}
	if err != nil {
		return st, fmt.Errorf("syncer: load stats: %w", err)
	}
	if st.Stats, err = DecodeLedger(defaults, fields); err != nil {
		return st, err
	}

	objs, err := a.store.List(ctx, ObjectivesPath(a.user))
	if err != nil {
		return st, fmt.Errorf("syncer: load objectives: %w", err)
	}
	for _, doc := range objs {
		kind, oid, _, ok := parsePath(a.user, doc.Path)
		if !ok || kind != KindObjective {
			continue
		}
		o, err := DecodeObjective(quest.Objective{}, oid, doc.Data)
		if err != nil {
			a.logger.Warn("skipping malformed objective", zap.String("path", doc.Path), zap.Error(err))
			continue
		}
		st.Objectives = append(st.Objectives, o)

		subs, err := a.store.List(ctx, SubtasksPath(a.user, oid))
		if err != nil {
			return st, fmt.Errorf("syncer: load subtasks of %s: %w", oid, err)
		}
		for _, sd := range subs {
			_, _, sid, ok := parsePath(a.user, sd.Path)
			if !ok {
				continue
			}
			s, err := DecodeSubtask(quest.Subtask{}, oid, sid, sd.Data)
			if err != nil {
				a.logger.Warn("skipping malformed subtask", zap.String("path", sd.Path), zap.Error(err))
				continue
			}
			st.Subtasks = append(st.Subtasks, s)
		}
	}
	return st, nil
}

// PushStats merge-writes only the ledger fields that changed.
func (a *Adapter) PushStats(ctx context.Context, prev, next progression.Ledger) error {
	before, err := Encode(prev)
	if err != nil {
		return err
	}
	after, err := Encode(next)
	if err != nil {
		return err
	}
	diff := Diff(before, after)
	if len(diff) == 0 {
		return nil
	}
	a.echoes.expect(StatsPath(a.user), after)
	return a.merge(ctx, StatsPath(a.user), diff)
}

func (a *Adapter) PushObjective(ctx context.Context, o quest.Objective) error {
	fields, err := Encode(o)
	if err != nil {
		return err
	}
	delete(fields, "id")
	path := ObjectivePath(a.user, o.ID)
	a.echoes.expect(path, fields)
	return a.merge(ctx, path, fields)
}

func (a *Adapter) PushSubtask(ctx context.Context, s quest.Subtask) error {
	fields, err := Encode(s)
	if err != nil {
		return err
	}
	delete(fields, "id")
	path := SubtaskPath(a.user, s.ObjectiveID, s.ID)
	a.echoes.expect(path, fields)
	return a.merge(ctx, path, fields)
}

// DeleteObjective deletes the subtasks first, then the objective. The
// objective is deleted even if some subtask deletes fail.
func (a *Adapter) DeleteObjective(ctx context.Context, objectiveID string, subtaskIDs []string) error {
	var errs error
	for _, sid := range subtaskIDs {
		errs = multierr.Append(errs, a.DeleteSubtask(ctx, objectiveID, sid))
	}
	path := ObjectivePath(a.user, objectiveID)
	a.echoes.forget(path)
	if err := a.store.Delete(ctx, path); err != nil {
		errs = multierr.Append(errs, &apperr.StoreWriteError{Op: "delete", Path: path, Err: err})
	}
	return partial(errs, len(subtaskIDs)+1)
}

// DeleteSubtasks removes subtask documents of an objective that stays.
func (a *Adapter) DeleteSubtasks(ctx context.Context, objectiveID string, subtaskIDs []string) error {
	var errs error
	for _, sid := range subtaskIDs {
		errs = multierr.Append(errs, a.DeleteSubtask(ctx, objectiveID, sid))
	}
	return partial(errs, len(subtaskIDs))
}

func (a *Adapter) DeleteSubtask(ctx context.Context, objectiveID, subtaskID string) error {
	path := SubtaskPath(a.user, objectiveID, subtaskID)
	a.echoes.forget(path)
	if err := a.store.Delete(ctx, path); err != nil {
		return &apperr.StoreWriteError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// SelectCurrent writes the isCurrent flag of every changed objective
// concurrently. A partial failure leaves the successful writes in place and
// is reported as *apperr.PartialWriteError.
func (a *Adapter) SelectCurrent(ctx context.Context, changed []quest.Objective) error {
	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for _, o := range changed {
		wg.Add(1)
		go func(o quest.Objective) {
			defer wg.Done()
			path := ObjectivePath(a.user, o.ID)
			fields := docstore.Fields{"isCurrent": o.IsCurrent}
			if o.IsCurrent {
				fields["selectedAt"] = o.SelectedAt
			}
			if full, err := Encode(o); err == nil {
				delete(full, "id")
				a.echoes.expect(path, full)
			}
			if err := a.merge(ctx, path, fields); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(o)
	}
	wg.Wait()
	return partial(errs, len(changed))
}

func (a *Adapter) merge(ctx context.Context, path string, fields docstore.Fields) error {
	if err := a.store.MergeWrite(ctx, path, fields); err != nil {
		return &apperr.StoreWriteError{Op: "merge", Path: path, Err: err}
	}
	return nil
}

// partial folds write errors of a multi-document operation. A single-document
// operation keeps its plain StoreWriteError.
func partial(errs error, total int) error {
	if errs == nil {
		return nil
	}
	all := multierr.Errors(errs)
	if total <= 1 && len(all) == 1 {
		return all[0]
	}
	pw := &apperr.PartialWriteError{Succeeded: total - len(all)}
	for _, e := range all {
		var sw *apperr.StoreWriteError
		if errors.As(e, &sw) {
			pw.Failed = append(pw.Failed, sw)
		} else {
			pw.Failed = append(pw.Failed, &apperr.StoreWriteError{Op: "merge", Err: e})
		}
	}
	return pw
}

// Subscribe streams remote changes to the user's documents.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan Inbound, func(), error) {
	changes, cancel, err := a.store.Subscribe(ctx, UserRoot(a.user))
	if err != nil {
		return nil, nil, fmt.Errorf("syncer: subscribe: %w", err)
	}
	out := make(chan Inbound, 64)
	go func() {
		defer close(out)
		for ch := range changes {
			kind, oid, sid, ok := parsePath(a.user, ch.Path)
			if !ok {
				continue
			}
			if !ch.Deleted && a.echoes.consume(ch.Path, ch.Data) {
				continue
			}
			in := Inbound{Kind: kind, ObjectiveID: oid, SubtaskID: sid, Deleted: ch.Deleted, Fields: ch.Data}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
