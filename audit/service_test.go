package audit

import (
	"context"
	"testing"
	"time"

	"github.com/Fixen7/lifequest-app/model"
	"github.com/Fixen7/lifequest-app/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	require.NotNil(t, svc)
	svc.Stop(context.Background())
}

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	svc.Log(Entry{
		TraceID:  "trace-123",
		UserID:   "u1",
		Action:   "subtask_completed",
		Request:  map[string]int{"xp": 20, "gold": 10},
		Response: map[string]any{"levelUps": []int{2}},
		Duration: 42 * time.Millisecond,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	db.Find(&logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.Equal(t, "subtask_completed", logs[0].Action)
	assert.JSONEq(t, `{"xp":20,"gold":10}`, string(logs[0].Request))
	assert.Equal(t, 42, logs[0].DurationMs)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	for i := 0; i < batchSize; i++ {
		svc.Log(Entry{UserID: "u1", Action: "batch"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(batchSize), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	defer svc.Stop(context.Background())

	svc.Log(Entry{UserID: "u1", Action: "timer_test"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Count(&count)
		return count == 1
	}, 4*time.Second, 100*time.Millisecond)
}

func TestRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	for _, a := range []string{"first", "second", "third"} {
		svc.Log(Entry{UserID: "u1", Action: a})
	}
	svc.Log(Entry{UserID: "u2", Action: "other"})
	svc.Stop(context.Background())

	logs, err := svc.Recent(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "u1", l.UserID)
	}
	assert.Equal(t, "third", logs[0].Action)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	// The queue holds queueSize entries; flooding past it must not block.
	for i := 0; i < queueSize+10; i++ {
		svc.Log(Entry{UserID: "u1", Action: "flood"})
	}
	svc.Stop(context.Background())
}
