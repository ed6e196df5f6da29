package player

import (
	"context"
	"errors"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
	"go.uber.org/multierr"
)

// ObjectiveView is an objective with its ordered subtasks.
type ObjectiveView struct {
	quest.Objective
	Subtasks []quest.Subtask `json:"subtasks"`
}

// ToggleOutcome is the result of ToggleSubtask.
type ToggleOutcome struct {
	Subtask   quest.Subtask   `json:"subtask"`
	Objective quest.Objective `json:"objective"`
	Completed bool            `json:"completed"`
	Progress  Progress        `json:"progress"`
}

// CompleteOutcome is the result of CompleteObjective.
type CompleteOutcome struct {
	Objective quest.Objective `json:"objective"`
	Removed   int             `json:"removedSubtasks"`
	Progress  Progress        `json:"progress"`
}

// ClaimResult reports a daily reward attempt. An early attempt is not an
// error: Claimed is false and Remaining holds the cooldown left.
type ClaimResult struct {
	Claimed   bool          `json:"claimed"`
	Remaining time.Duration `json:"-"`
	Progress  Progress      `json:"progress"`
}

// Stats returns a copy of the current ledger.
func (s *Session) Stats(ctx context.Context) (progression.Ledger, error) {
	return call(ctx, s, func() (progression.Ledger, error) {
		return s.ledger.Clone(), nil
	})
}

// Objectives lists every objective in creation order with its subtasks.
func (s *Session) Objectives(ctx context.Context) ([]ObjectiveView, error) {
	return call(ctx, s, func() ([]ObjectiveView, error) {
		objs := s.quests.Objectives()
		out := make([]ObjectiveView, 0, len(objs))
		for _, o := range objs {
			out = append(out, ObjectiveView{Objective: o, Subtasks: s.quests.Subtasks(o.ID)})
		}
		return out, nil
	})
}

func (s *Session) CreateObjective(ctx context.Context, in quest.ObjectiveInput) (quest.Objective, error) {
	return call(ctx, s, func() (quest.Objective, error) {
		o, err := s.quests.CreateObjective(in)
		if err != nil {
			return o, err
		}
		return o, s.adapter.PushObjective(ctx, o)
	})
}

// SelectCurrent makes id the only current objective. Every objective whose
// flag changed is written; a partial failure is returned as
// *apperr.PartialWriteError.
func (s *Session) SelectCurrent(ctx context.Context, id string) (quest.Objective, error) {
	return call(ctx, s, func() (quest.Objective, error) {
		changed, err := s.quests.SelectCurrent(id)
		if err != nil {
			return quest.Objective{}, err
		}
		o, _ := s.quests.Objective(id)
		return o, s.adapter.SelectCurrent(ctx, changed)
	})
}

// AddSubtask adds a subtask to the current objective.
func (s *Session) AddSubtask(ctx context.Context, in quest.SubtaskInput) (quest.Subtask, error) {
	return call(ctx, s, func() (quest.Subtask, error) {
		st, err := s.quests.AddSubtask(in)
		if err != nil {
			return st, err
		}
		return st, s.adapter.PushSubtask(ctx, st)
	})
}

func (s *Session) EditSubtask(ctx context.Context, id string, p quest.SubtaskPatch) (quest.Subtask, error) {
	return call(ctx, s, func() (quest.Subtask, error) {
		st, err := s.quests.EditSubtask(id, p)
		if err != nil {
			return st, err
		}
		return st, s.adapter.PushSubtask(ctx, st)
	})
}

// ToggleSubtask completes or un-completes a subtask, moving the parent's
// progress and granting or deducting the snapshotted reward.
func (s *Session) ToggleSubtask(ctx context.Context, id string) (ToggleOutcome, error) {
	return call(ctx, s, func() (ToggleOutcome, error) {
		res, err := s.quests.ToggleSubtask(id)
		if err != nil {
			return ToggleOutcome{}, err
		}
		var ev progression.Event = progression.SubtaskUndone{XP: res.XP, Gold: res.Gold}
		if res.Completed {
			ev = progression.SubtaskCompleted{XP: res.XP, Gold: res.Gold, Today: s.deps.Gate.Today()}
		}
		p, _, statsErr := s.apply(ctx, ev)
		out := ToggleOutcome{
			Subtask:   res.Subtask,
			Objective: res.Objective,
			Completed: res.Completed,
			Progress:  p,
		}
		return out, multierr.Combine(
			s.adapter.PushSubtask(ctx, res.Subtask),
			s.adapter.PushObjective(ctx, res.Objective),
			statsErr,
		)
	})
}

// DeleteSubtask removes a subtask; progress already made is kept.
func (s *Session) DeleteSubtask(ctx context.Context, id string) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		st, err := s.quests.DeleteSubtask(id)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.adapter.DeleteSubtask(ctx, st.ObjectiveID, st.ID)
	})
	return err
}

// CompleteObjective completes a fully progressed objective, grants its
// reward and deletes its subtasks.
func (s *Session) CompleteObjective(ctx context.Context, id string) (CompleteOutcome, error) {
	return call(ctx, s, func() (CompleteOutcome, error) {
		res, err := s.quests.CompleteObjective(id)
		if err != nil {
			return CompleteOutcome{}, err
		}
		p, _, statsErr := s.apply(ctx, progression.ObjectiveCompleted{
			XP:    res.XP,
			Gold:  res.Gold,
			Today: s.deps.Gate.Today(),
		})
		out := CompleteOutcome{Objective: res.Objective, Removed: len(res.RemovedSubtasks), Progress: p}
		return out, multierr.Combine(
			statsErr,
			s.adapter.PushObjective(ctx, res.Objective),
			s.adapter.DeleteSubtasks(ctx, id, subtaskIDs(res.RemovedSubtasks)),
		)
	})
}

// DeleteObjective deletes an objective and its subtasks. No reward is
// reverted.
func (s *Session) DeleteObjective(ctx context.Context, id string) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		_, removed, err := s.quests.DeleteObjective(id)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.adapter.DeleteObjective(ctx, id, subtaskIDs(removed))
	})
	return err
}

func (s *Session) ClaimDailyReward(ctx context.Context) (ClaimResult, error) {
	return call(ctx, s, func() (ClaimResult, error) {
		g := s.deps.Game
		p, out, err := s.apply(ctx, progression.DailyRewardClaimed{
			Now:  s.deps.Gate.Now(),
			XP:   g.DailyRewardXP,
			Gold: g.DailyRewardGold,
		})
		return ClaimResult{Claimed: out.Claimed, Remaining: out.Cooldown, Progress: p}, err
	})
}

// RecordSatisfaction stores today's satisfaction, clamped to [0, 100].
func (s *Session) RecordSatisfaction(ctx context.Context, value int) (Progress, error) {
	return s.event(ctx, func() progression.Event {
		return progression.SatisfactionRecorded{Value: value, Today: s.deps.Gate.Today()}
	})
}

func (s *Session) FinishPomodoro(ctx context.Context) (Progress, error) {
	g := s.deps.Game
	return s.event(ctx, func() progression.Event {
		return progression.PomodoroFinished{XP: g.PomodoroXP, Gold: g.PomodoroGold, VitalityCost: g.PomodoroVitality}
	})
}

// Rest restores vitality to its maximum.
func (s *Session) Rest(ctx context.Context) (Progress, error) {
	return s.event(ctx, func() progression.Event { return progression.Rested{} })
}

func (s *Session) CompleteTutorial(ctx context.Context) (Progress, error) {
	return s.event(ctx, func() progression.Event { return progression.TutorialCompleted{} })
}

func (s *Session) event(ctx context.Context, mk func() progression.Event) (Progress, error) {
	return call(ctx, s, func() (Progress, error) {
		p, _, err := s.apply(ctx, mk())
		return p, err
	})
}

// SuggestSubtasks asks the assistant for subtasks of an objective. Nothing
// is added; the caller picks from the validated suggestions.
func (s *Session) SuggestSubtasks(ctx context.Context, objectiveID string, n int) ([]quest.SubtaskInput, error) {
	o, err := call(ctx, s, func() (quest.Objective, error) {
		o, ok := s.quests.Objective(objectiveID)
		if !ok {
			return o, apperr.NotFound("objective", objectiveID)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	if s.deps.Assistant == nil {
		return nil, &apperr.ExternalServiceError{Op: "suggest_subtasks", Err: errNoAssistant}
	}
	return s.deps.Assistant.SuggestSubtasks(ctx, o, n)
}

// Advice asks the assistant for free-text advice on the current ledger.
func (s *Session) Advice(ctx context.Context) (string, error) {
	l, err := s.Stats(ctx)
	if err != nil {
		return "", err
	}
	if s.deps.Assistant == nil {
		return "", &apperr.ExternalServiceError{Op: "advice", Err: errNoAssistant}
	}
	return s.deps.Assistant.Advice(ctx, l)
}

// Illustrate asks the assistant for a quest card image of an objective and
// returns its URL or data URI.
func (s *Session) Illustrate(ctx context.Context, objectiveID string) (string, error) {
	o, err := call(ctx, s, func() (quest.Objective, error) {
		o, ok := s.quests.Objective(objectiveID)
		if !ok {
			return o, apperr.NotFound("objective", objectiveID)
		}
		return o, nil
	})
	if err != nil {
		return "", err
	}
	if s.deps.Assistant == nil {
		return "", &apperr.ExternalServiceError{Op: "illustrate", Err: errNoAssistant}
	}
	return s.deps.Assistant.Illustrate(ctx, o)
}

var errNoAssistant = errors.New("no assistant configured")

func subtaskIDs(subs []quest.Subtask) []string {
	ids := make([]string, len(subs))
	for i, st := range subs {
		ids[i] = st.ID
	}
	return ids
}
