package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
	"github.com/Fixen7/lifequest-app/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingStore wraps a real store, records write order and fails writes
// to selected paths.
type recordingStore struct {
	docstore.Store
	mu     sync.Mutex
	ops    []string
	merges map[string]docstore.Fields
	fail   map[string]bool
}

func (r *recordingStore) MergeWrite(ctx context.Context, path string, f docstore.Fields) error {
	r.mu.Lock()
	r.ops = append(r.ops, "merge "+path)
	r.merges[path] = f
	failing := r.fail[path]
	r.mu.Unlock()
	if failing {
		return errors.New("unavailable")
	}
	return r.Store.MergeWrite(ctx, path, f)
}

func (r *recordingStore) Delete(ctx context.Context, path string) error {
	r.mu.Lock()
	r.ops = append(r.ops, "delete "+path)
	failing := r.fail[path]
	r.mu.Unlock()
	if failing {
		return errors.New("unavailable")
	}
	return r.Store.Delete(ctx, path)
}

func newTestAdapter(t *testing.T) (*Adapter, *recordingStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c, ps := testutil.SetupTestCache(t)
	rs := &recordingStore{
		Store:  docstore.NewCacheStore(c, ps, logger),
		merges: map[string]docstore.Fields{},
		fail:   map[string]bool{},
	}
	return New(rs, "u1", logger), rs
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/u1/playerStats/main", StatsPath("u1"))
	assert.Equal(t, "users/u1/objectives/o1/subtasks/s1", SubtaskPath("u1", "o1", "s1"))

	kind, oid, sid, ok := parsePath("u1", "users/u1/objectives/o1/subtasks/s1")
	require.True(t, ok)
	assert.Equal(t, KindSubtask, kind)
	assert.Equal(t, "o1", oid)
	assert.Equal(t, "s1", sid)

	_, _, _, ok = parsePath("u1", "users/u2/objectives/o1")
	assert.False(t, ok)
	_, _, _, ok = parsePath("u1", "users/u1/inventory/x")
	assert.False(t, ok)
}

func TestEncode_ZeroTimeIsNull(t *testing.T) {
	f, err := Encode(progression.NewLedger(progression.StandardDefaults))
	require.NoError(t, err)
	v, ok := f["lastDailyRewardClaim"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, float64(1), f["level"])
}

func TestDiff(t *testing.T) {
	d := Diff(
		docstore.Fields{"a": 1.0, "b": "x", "c": []any{"p"}},
		docstore.Fields{"a": 1.0, "b": "y", "c": []any{"p", "q"}, "d": true},
	)
	assert.Equal(t, docstore.Fields{"b": "y", "c": []any{"p", "q"}, "d": true}, d)
}

func TestDecodeLedger_OverlaysPresentKeysOnly(t *testing.T) {
	base := progression.NewLedger(progression.StandardDefaults)
	base.Gold = 40
	base.Achievements = []string{"first_quest", "level_5", "streak_3"}
	base.LastDailyRewardClaim = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	got, err := DecodeLedger(base, docstore.Fields{
		"xp":                   float64(30),
		"achievements":         []any{"first_quest"},
		"lastDailyRewardClaim": nil,
		"lastStreakDate":       "2026-10-15",
		"vitality":             float64(900),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, got.XP)
	assert.Equal(t, 40, got.Gold, "absent keys keep their value")
	assert.Equal(t, []string{"first_quest"}, got.Achievements)
	assert.True(t, got.LastDailyRewardClaim.IsZero())
	assert.Equal(t, daily.Date("2026-10-15"), got.LastStreakDate)
	assert.Equal(t, got.MaxVitality, got.Vitality, "snapshot is normalized")
	assert.Len(t, base.Achievements, 3, "base is not aliased")
}

func TestDecodeLedger_CorruptSnapshotComesOutValid(t *testing.T) {
	base := progression.NewLedger(progression.StandardDefaults)
	got, err := DecodeLedger(base, docstore.Fields{
		"level":               float64(0),
		"xp":                  float64(5000),
		"gold":                float64(-3),
		"currentSatisfaction": float64(180),
		"currentStreak":       float64(-1),
		"pomodoroCount":       float64(-2),
		"satisfactionHistory": []any{
			map[string]any{"date": "2026-10-15", "value": float64(20)},
			map[string]any{"date": "2026-10-15", "value": float64(40)},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, got.Validate())
	assert.Greater(t, got.Level, 1, "overflowing xp is cascaded into levels")
	assert.Zero(t, got.Gold)
	assert.Len(t, got.SatisfactionHistory, 1)
}

func TestDecodeObjective_Times(t *testing.T) {
	ts := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	o, err := DecodeObjective(quest.Objective{Name: "old"}, "o1", docstore.Fields{
		"id":          "ignored",
		"selectedAt":  ts.Format(time.RFC3339Nano),
		"completedAt": "",
		"difficulty":  "Epic",
		"xpReward":    float64(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "old", o.Name)
	assert.True(t, o.SelectedAt.Equal(ts))
	assert.True(t, o.CompletedAt.IsZero())
	assert.Equal(t, quest.DifficultyEpic, o.Difficulty)
	assert.Equal(t, 1000, o.XPReward)

	_, err = DecodeObjective(quest.Objective{}, "o1", docstore.Fields{"xpReward": "lots"})
	assert.Error(t, err)
}

func TestLoad_CreatesDefaultsOnce(t *testing.T) {
	a, rs := newTestAdapter(t)
	ctx := context.Background()
	defaults := progression.NewLedger(progression.StandardDefaults)

	st, err := a.Load(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults.Level, st.Stats.Level)
	assert.Empty(t, st.Objectives)

	next, _ := progression.GrantXP(st.Stats, 40)
	require.NoError(t, a.PushStats(ctx, st.Stats, next))
	assert.Equal(t, docstore.Fields{"xp": float64(40)}, rs.merges[StatsPath("u1")], "only changed fields are written")

	again, err := New(rs, "u1", zap.NewNop()).Load(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, 40, again.Stats.XP)
}

func TestLoad_ReadsObjectivesAndSubtasks(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()
	o := quest.Objective{ID: "o1", Name: "Run", Difficulty: quest.DifficultyEasy, TotalProgress: 10, XPReward: 100, IsCurrent: true}
	s := quest.Subtask{ID: "s1", ObjectiveID: "o1", Text: "jog", ProgressContribution: 5}
	require.NoError(t, a.PushObjective(ctx, o))
	require.NoError(t, a.PushSubtask(ctx, s))

	st, err := a.Load(ctx, progression.NewLedger(progression.StandardDefaults))
	require.NoError(t, err)
	require.Len(t, st.Objectives, 1)
	assert.Equal(t, o, st.Objectives[0])
	require.Len(t, st.Subtasks, 1)
	assert.Equal(t, s, st.Subtasks[0])
}

func TestSelectCurrent_PartialFailure(t *testing.T) {
	a, rs := newTestAdapter(t)
	ctx := context.Background()
	rs.fail[ObjectivePath("u1", "b")] = true

	err := a.SelectCurrent(ctx, []quest.Objective{
		{ID: "a", IsCurrent: false},
		{ID: "b", IsCurrent: true, SelectedAt: time.Now()},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsStoreWrite(err))

	var pw *apperr.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, 1, pw.Succeeded)
	require.Len(t, pw.Failed, 1)
	assert.Equal(t, ObjectivePath("u1", "b"), pw.Failed[0].Path)

	got, err := rs.Get(ctx, ObjectivePath("u1", "a"))
	require.NoError(t, err)
	assert.Equal(t, false, got["isCurrent"])
}

func TestSelectCurrent_SingleFailureIsPlain(t *testing.T) {
	a, rs := newTestAdapter(t)
	rs.fail[ObjectivePath("u1", "a")] = true
	err := a.SelectCurrent(context.Background(), []quest.Objective{{ID: "a", IsCurrent: true}})
	var sw *apperr.StoreWriteError
	require.ErrorAs(t, err, &sw)
	var pw *apperr.PartialWriteError
	assert.False(t, errors.As(err, &pw))
}

func TestDeleteObjective_SubtasksFirst(t *testing.T) {
	a, rs := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.DeleteObjective(ctx, "o1", []string{"s1", "s2"}))
	assert.Equal(t, []string{
		"delete " + SubtaskPath("u1", "o1", "s1"),
		"delete " + SubtaskPath("u1", "o1", "s2"),
		"delete " + ObjectivePath("u1", "o1"),
	}, rs.ops)

	rs.fail[SubtaskPath("u1", "o2", "s1")] = true
	err := a.DeleteObjective(ctx, "o2", []string{"s1"})
	var pw *apperr.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, 1, pw.Succeeded)
}

func TestSubscribe_FiltersOwnEchoes(t *testing.T) {
	a, rs := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in, stop, err := a.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	o := quest.Objective{ID: "o1", Name: "Run", TotalProgress: 10}
	require.NoError(t, a.PushObjective(ctx, o))

	// another device edits the same objective
	require.NoError(t, rs.Store.MergeWrite(ctx, ObjectivePath("u1", "o1"), docstore.Fields{"currentProgress": 7}))
	require.NoError(t, rs.Store.Delete(ctx, SubtaskPath("u1", "o1", "s1")))

	select {
	case got := <-in:
		assert.Equal(t, KindObjective, got.Kind)
		assert.Equal(t, "o1", got.ObjectiveID)
		assert.Equal(t, float64(7), got.Fields["currentProgress"])
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound change")
	}
	select {
	case got := <-in:
		assert.Equal(t, KindSubtask, got.Kind)
		assert.True(t, got.Deleted)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound deletion")
	}
}

func TestEchoFilter_ForeignSnapshotClearsPending(t *testing.T) {
	f := newEchoFilter()
	path := StatsPath("u1")
	f.expect(path, docstore.Fields{"xp": float64(40)})

	assert.False(t, f.consume(path, docstore.Fields{"xp": float64(0), "gold": float64(5)}))
	// our write landed after the foreign one and must not be dropped
	assert.False(t, f.consume(path, docstore.Fields{"xp": float64(40), "gold": float64(5)}))

	f.expect(path, docstore.Fields{"xp": float64(41)})
	assert.True(t, f.consume(path, docstore.Fields{"xp": float64(41), "gold": float64(5)}))
	assert.False(t, f.consume(path, docstore.Fields{"xp": float64(41), "gold": float64(5)}))
}

func TestLoad_CreateIsNotReportedBack(t *testing.T) {
	a, rs := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in, stop, err := a.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	_, err = a.Load(ctx, progression.NewLedger(progression.StandardDefaults))
	require.NoError(t, err)
	require.NoError(t, rs.Store.MergeWrite(ctx, StatsPath("u1"), docstore.Fields{"gold": 7}))

	select {
	case got := <-in:
		assert.Equal(t, KindStats, got.Kind)
		assert.Equal(t, float64(7), got.Fields["gold"])
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound change")
	}
}
