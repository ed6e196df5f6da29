// Package quest owns the objective/subtask aggregate and its transitions.
// The Store is driven by a single actor and is not safe for concurrent use.
package quest

import (
	"fmt"
	"sort"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/google/uuid"
)

// Store maps objectives to their ordered subtasks.
type Store struct {
	objectives  map[string]*Objective
	subtasks    map[string]*Subtask
	byObjective map[string][]string // objective id → subtask ids

	rewards RewardTable
	newID   func() string
	now     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

func WithRewards(r RewardTable) Option { return func(s *Store) { s.rewards = r } }

func WithIDs(fn func() string) Option { return func(s *Store) { s.newID = fn } }

func WithClock(fn func() time.Time) Option { return func(s *Store) { s.now = fn } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		objectives:  make(map[string]*Objective),
		subtasks:    make(map[string]*Subtask),
		byObjective: make(map[string][]string),
		rewards:     DefaultRewards,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ToggleResult describes a subtask completion toggle.
type ToggleResult struct {
	Subtask   Subtask
	Objective Objective
	Completed bool // true: false→true, false: undo
	XP, Gold  int  // reward granted (Completed) or to deduct (undo)
}

// CompleteResult describes a completed objective.
type CompleteResult struct {
	Objective       Objective
	RemovedSubtasks []Subtask
	XP, Gold        int
}

// ---- queries ----

func (s *Store) Objective(id string) (Objective, bool) {
	o, ok := s.objectives[id]
	if !ok {
		return Objective{}, false
	}
	return *o, true
}

func (s *Store) Subtask(id string) (Subtask, bool) {
	st, ok := s.subtasks[id]
	if !ok {
		return Subtask{}, false
	}
	return *st, true
}

// Objectives lists all objectives in creation order.
func (s *Store) Objectives() []Objective {
	out := make([]Objective, 0, len(s.objectives))
	for _, o := range s.objectives {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Subtasks lists an objective's subtasks in order.
func (s *Store) Subtasks(objectiveID string) []Subtask {
	ids := s.byObjective[objectiveID]
	out := make([]Subtask, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.subtasks[id])
	}
	return out
}

// Current returns the objective marked current, if any.
func (s *Store) Current() (Objective, bool) {
	for _, o := range s.objectives {
		if o.IsCurrent {
			return *o, true
		}
	}
	return Objective{}, false
}

// CompletedCount counts completed objectives still in the store.
func (s *Store) CompletedCount() int {
	n := 0
	for _, o := range s.objectives {
		if o.IsCompleted {
			n++
		}
	}
	return n
}

// ---- transitions ----

// CreateObjective inserts a new, non-current, zero-progress objective.
func (s *Store) CreateObjective(in ObjectiveInput) (Objective, error) {
	if err := in.normalize(); err != nil {
		return Objective{}, err
	}
	o := &Objective{
		ID:            s.newID(),
		Name:          in.Name,
		Description:   in.Description,
		Difficulty:    in.Difficulty,
		TotalProgress: in.TotalProgress,
		XPReward:      s.rewards.XPReward(in.Difficulty),
		CreatedAt:     s.now(),
	}
	s.objectives[o.ID] = o
	return *o, nil
}

// SelectCurrent makes id the only current objective. It returns every
// objective whose IsCurrent flag changed.
func (s *Store) SelectCurrent(id string) ([]Objective, error) {
	target, ok := s.objectives[id]
	if !ok {
		return nil, apperr.NotFound("objective", id)
	}
	if target.IsCompleted {
		return nil, apperr.Invalid("objective", "completed objectives cannot be selected")
	}
	var changed []Objective
	for _, o := range s.objectives {
		if o.ID != id && o.IsCurrent {
			o.IsCurrent = false
			changed = append(changed, *o)
		}
	}
	if !target.IsCurrent {
		target.IsCurrent = true
		target.SelectedAt = s.now()
		changed = append(changed, *target)
	}
	return changed, nil
}

// AddSubtask appends a subtask to the current objective.
func (s *Store) AddSubtask(in SubtaskInput) (Subtask, error) {
	cur, ok := s.Current()
	if !ok {
		return Subtask{}, apperr.Invalid("objective", "no current objective")
	}
	return s.AddSubtaskTo(cur.ID, in)
}

// AddSubtaskTo appends a subtask to a specific open objective.
func (s *Store) AddSubtaskTo(objectiveID string, in SubtaskInput) (Subtask, error) {
	o, ok := s.objectives[objectiveID]
	if !ok {
		return Subtask{}, apperr.NotFound("objective", objectiveID)
	}
	if o.IsCompleted {
		return Subtask{}, apperr.Invalid("objective", "objective is completed")
	}
	if err := in.normalize(); err != nil {
		return Subtask{}, err
	}
	ids := s.byObjective[objectiveID]
	pos := 0
	if n := len(ids); n > 0 {
		pos = s.subtasks[ids[n-1]].Position + 1
	}
	st := &Subtask{
		ID:                   s.newID(),
		ObjectiveID:          objectiveID,
		Text:                 in.Text,
		XPReward:             in.XPReward,
		GoldReward:           in.GoldReward,
		ProgressContribution: in.ProgressContribution,
		DueDate:              in.DueDate,
		IsPunishment:         in.IsPunishment,
		Position:             pos,
		CreatedAt:            s.now(),
	}
	s.subtasks[st.ID] = st
	s.byObjective[objectiveID] = append(ids, st.ID)
	return *st, nil
}

// ToggleSubtask flips a subtask's completion and moves the parent's progress
// by its contribution, clamped to [0, TotalProgress]. Completion snapshots
// the granted reward; undo returns exactly that snapshot for deduction.
func (s *Store) ToggleSubtask(id string) (ToggleResult, error) {
	st, ok := s.subtasks[id]
	if !ok {
		return ToggleResult{}, apperr.NotFound("subtask", id)
	}
	o := s.objectives[st.ObjectiveID]
	if o.IsCompleted {
		return ToggleResult{}, apperr.Invalid("objective", "objective is completed")
	}

	res := ToggleResult{}
	if !st.IsCompleted {
		st.IsCompleted = true
		st.EverCompleted = true
		st.GrantedXP = st.XPReward
		st.GrantedGold = st.GoldReward
		o.CurrentProgress = min(o.CurrentProgress+st.ProgressContribution, o.TotalProgress)
		res.Completed = true
		res.XP, res.Gold = st.GrantedXP, st.GrantedGold
	} else {
		st.IsCompleted = false
		o.CurrentProgress = max(o.CurrentProgress-st.ProgressContribution, 0)
		res.XP, res.Gold = st.GrantedXP, st.GrantedGold
		st.GrantedXP, st.GrantedGold = 0, 0
	}
	res.Subtask = *st
	res.Objective = *o
	return res, nil
}

// EditSubtask applies a patch. Reward and progress fields are frozen once
// the subtask has ever been completed.
func (s *Store) EditSubtask(id string, p SubtaskPatch) (Subtask, error) {
	st, ok := s.subtasks[id]
	if !ok {
		return Subtask{}, apperr.NotFound("subtask", id)
	}
	if s.objectives[st.ObjectiveID].IsCompleted {
		return Subtask{}, apperr.Invalid("objective", "objective is completed")
	}
	if p.touchesRewards() && (st.EverCompleted || st.IsPunishment) {
		return Subtask{}, apperr.Invalid("subtask", "rewards are frozen")
	}
	in := SubtaskInput{
		Text:                 st.Text,
		XPReward:             st.XPReward,
		GoldReward:           st.GoldReward,
		ProgressContribution: st.ProgressContribution,
		DueDate:              st.DueDate,
		IsPunishment:         st.IsPunishment,
	}
	if p.Text != nil {
		in.Text = *p.Text
	}
	if p.XPReward != nil {
		in.XPReward = *p.XPReward
	}
	if p.GoldReward != nil {
		in.GoldReward = *p.GoldReward
	}
	if p.ProgressContribution != nil {
		in.ProgressContribution = *p.ProgressContribution
	}
	if p.DueDate != nil {
		in.DueDate = *p.DueDate
	}
	if err := in.normalize(); err != nil {
		return Subtask{}, err
	}
	st.Text = in.Text
	st.XPReward = in.XPReward
	st.GoldReward = in.GoldReward
	st.ProgressContribution = in.ProgressContribution
	st.DueDate = in.DueDate
	return *st, nil
}

// DeleteSubtask removes a subtask. Progress and rewards are left as they are.
func (s *Store) DeleteSubtask(id string) (Subtask, error) {
	st, ok := s.subtasks[id]
	if !ok {
		return Subtask{}, apperr.NotFound("subtask", id)
	}
	removed := *st
	s.RemoveSubtask(id)
	return removed, nil
}

// CompleteObjective marks a fully progressed objective completed, clears
// its current flag and purges its subtasks.
func (s *Store) CompleteObjective(id string) (CompleteResult, error) {
	o, ok := s.objectives[id]
	if !ok {
		return CompleteResult{}, apperr.NotFound("objective", id)
	}
	if o.IsCompleted {
		return CompleteResult{}, apperr.Invalid("objective", "already completed")
	}
	if o.CurrentProgress < o.TotalProgress {
		return CompleteResult{}, apperr.Invalid("currentProgress",
			fmt.Sprintf("progress %d/%d has not reached the total", o.CurrentProgress, o.TotalProgress))
	}
	o.IsCompleted = true
	o.IsCurrent = false
	o.CompletedAt = s.now()
	return CompleteResult{
		Objective:       *o,
		RemovedSubtasks: s.purgeSubtasks(id),
		XP:              o.XPReward,
		Gold:            o.GoldReward(),
	}, nil
}

// DeleteObjective removes an objective and its subtasks. Rewards already
// granted are kept.
func (s *Store) DeleteObjective(id string) (Objective, []Subtask, error) {
	o, ok := s.objectives[id]
	if !ok {
		return Objective{}, nil, apperr.NotFound("objective", id)
	}
	removed := s.purgeSubtasks(id)
	delete(s.objectives, id)
	return *o, removed, nil
}

func (s *Store) purgeSubtasks(objectiveID string) []Subtask {
	ids := s.byObjective[objectiveID]
	removed := make([]Subtask, 0, len(ids))
	for _, sid := range ids {
		removed = append(removed, *s.subtasks[sid])
		delete(s.subtasks, sid)
	}
	delete(s.byObjective, objectiveID)
	return removed
}

// ---- snapshot application ----

// UpsertObjective installs an objective as received from the store and
// re-establishes the invariants. It returns objectives Repair changed.
func (s *Store) UpsertObjective(o Objective) []Objective {
	if o.ID == "" {
		return nil
	}
	if o.TotalProgress <= 0 {
		o.TotalProgress = 1
	}
	o.CurrentProgress = max(min(o.CurrentProgress, o.TotalProgress), 0)
	cp := o
	s.objectives[o.ID] = &cp
	return s.Repair()
}

// UpsertSubtask installs a subtask as received from the store. Subtasks of
// unknown or completed objectives are ignored.
func (s *Store) UpsertSubtask(st Subtask) bool {
	o, ok := s.objectives[st.ObjectiveID]
	if !ok || o.IsCompleted || st.ID == "" {
		return false
	}
	cp := st
	if _, exists := s.subtasks[st.ID]; !exists {
		s.byObjective[st.ObjectiveID] = append(s.byObjective[st.ObjectiveID], st.ID)
	}
	s.subtasks[st.ID] = &cp
	ids := s.byObjective[st.ObjectiveID]
	sort.SliceStable(ids, func(i, j int) bool {
		return s.subtasks[ids[i]].Position < s.subtasks[ids[j]].Position
	})
	return true
}

// RemoveObjective drops an objective and its subtasks without validation.
func (s *Store) RemoveObjective(id string) {
	s.purgeSubtasks(id)
	delete(s.objectives, id)
}

// RemoveSubtask drops a subtask without validation.
func (s *Store) RemoveSubtask(id string) {
	st, ok := s.subtasks[id]
	if !ok {
		return
	}
	delete(s.subtasks, id)
	ids := s.byObjective[st.ObjectiveID]
	for i, sid := range ids {
		if sid == id {
			s.byObjective[st.ObjectiveID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// Repair enforces the at-most-one-current invariant: completed objectives
// are never current and, among several current ones, the most recently
// selected wins. It returns the objectives it changed.
func (s *Store) Repair() []Objective {
	var changed []Objective
	var keep *Objective
	for _, o := range s.objectives {
		if !o.IsCurrent {
			continue
		}
		if o.IsCompleted {
			o.IsCurrent = false
			changed = append(changed, *o)
			continue
		}
		if keep == nil || o.SelectedAt.After(keep.SelectedAt) ||
			(o.SelectedAt.Equal(keep.SelectedAt) && o.ID > keep.ID) {
			keep = o
		}
	}
	for _, o := range s.objectives {
		if o.IsCurrent && o != keep {
			o.IsCurrent = false
			changed = append(changed, *o)
		}
	}
	return changed
}
