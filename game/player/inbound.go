package player

import (
	"context"

	"github.com/Fixen7/lifequest-app/game/quest"
	"github.com/Fixen7/lifequest-app/syncer"
	"go.uber.org/zap"
)

// applyInbound installs a store snapshot. The snapshot wins over any earlier
// optimistic state for the fields it carries; the result is normalized and
// the at-most-one-current invariant is repaired centrally.
func (s *Session) applyInbound(ctx context.Context, in syncer.Inbound) {
	log := s.logger.With(zap.Stringer("kind", in.Kind),
		zap.String("objective_id", in.ObjectiveID), zap.String("subtask_id", in.SubtaskID))

	switch in.Kind {
	case syncer.KindStats:
		if in.Deleted {
			log.Warn("stats document deleted remotely, keeping local ledger")
			return
		}
		l, err := syncer.DecodeLedger(s.ledger, in.Fields)
		if err != nil {
			log.Warn("ignoring malformed stats snapshot", zap.Error(err))
			return
		}
		s.ledger = l
		stats := l.Clone()
		s.notify(ctx, Notification{Kind: NotifyStats, Stats: &stats})

	case syncer.KindObjective:
		if in.Deleted {
			s.quests.RemoveObjective(in.ObjectiveID)
			return
		}
		base, _ := s.quests.Objective(in.ObjectiveID)
		o, err := syncer.DecodeObjective(base, in.ObjectiveID, in.Fields)
		if err != nil {
			log.Warn("ignoring malformed objective snapshot", zap.Error(err))
			return
		}
		s.persistRepair(ctx, s.quests.UpsertObjective(o))

	case syncer.KindSubtask:
		if in.Deleted {
			s.quests.RemoveSubtask(in.SubtaskID)
			return
		}
		base, _ := s.quests.Subtask(in.SubtaskID)
		st, err := syncer.DecodeSubtask(base, in.ObjectiveID, in.SubtaskID, in.Fields)
		if err != nil {
			log.Warn("ignoring malformed subtask snapshot", zap.Error(err))
			return
		}
		if !s.quests.UpsertSubtask(st) {
			log.Debug("dropping subtask of unknown or completed objective")
		}
	}
}

func (s *Session) persistRepair(ctx context.Context, changed []quest.Objective) {
	if len(changed) == 0 {
		return
	}
	if err := s.adapter.SelectCurrent(ctx, changed); err != nil {
		s.logger.Warn("persisting current-objective repair failed", zap.Error(err))
	}
}
