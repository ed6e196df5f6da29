package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Fixen7/lifequest-app/api/rest"
	"github.com/Fixen7/lifequest-app/game/player"
	"github.com/Fixen7/lifequest-app/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminDo(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, adminDo(ts.r, http.MethodGet, "/api/admin/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, adminDo(ts.r, http.MethodGet, "/api/admin/metrics", "wrong").Code)
	assert.Equal(t, http.StatusOK, adminDo(ts.r, http.MethodGet, "/api/admin/metrics", "secret-key").Code)
}

func TestAdminAuth_EmptyKeyDisables(t *testing.T) {
	r := gin.New()
	r.Use(rest.AdminAuth(""))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusServiceUnavailable, adminDo(r, http.MethodGet, "/x", "anything").Code)
}

func TestAdmin_SessionsAndClose(t *testing.T) {
	ts := newTestServer(t)
	w := doRequest(ts.r, http.MethodGet, "/api/stats", nil, tokenFor(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = adminDo(ts.r, http.MethodGet, "/api/admin/sessions", "secret-key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, field[int](t, w, "count"))

	w = adminDo(ts.r, http.MethodPost, "/api/admin/sessions/nobody/close", "secret-key")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminDo(ts.r, http.MethodPost, "/api/admin/sessions/u1/close", "secret-key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Eventually(t, func() bool { return ts.sm.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAdmin_RolloverAnnouncesOnce(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, unsub, err := ts.pubsub.Subscribe(ctx, player.RolloverChannel)
	require.NoError(t, err)
	defer unsub()

	assert.Equal(t, http.StatusOK, adminDo(ts.r, http.MethodPost, "/api/admin/rollover", "secret-key").Code)
	assert.Equal(t, http.StatusOK, adminDo(ts.r, http.MethodPost, "/api/admin/rollover", "secret-key").Code)

	select {
	case m := <-msgs:
		assert.Equal(t, "2026-10-16", m.Payload)
	case <-time.After(time.Second):
		t.Fatal("rollover not announced")
	}
	select {
	case <-msgs:
		t.Fatal("rollover announced twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAdmin_SchedulerListsJobs(t *testing.T) {
	ts := newTestServer(t)

	w := adminDo(ts.r, http.MethodGet, "/api/admin/scheduler", "secret-key")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := field[[]scheduler.Status](t, w, "tasks")
	require.Len(t, tasks, 2)
	assert.Equal(t, rest.RolloverJob, tasks[0].Name)
	assert.Equal(t, scheduler.KindCron, tasks[0].Kind)
	assert.Equal(t, "1 0 * * *", tasks[0].Spec)
	assert.Equal(t, rest.IdleSweepJob, tasks[1].Name)
	assert.Equal(t, scheduler.KindTicker, tasks[1].Kind)

	next := field[time.Time](t, w, "next_rollover")
	assert.True(t, next.After(time.Now()))
}

func TestAdmin_RolloverRecordedOnJob(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, adminDo(ts.r, http.MethodPost, "/api/admin/rollover", "secret-key").Code)
	w := adminDo(ts.r, http.MethodGet, "/api/admin/scheduler", "secret-key")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := field[[]scheduler.Status](t, w, "tasks")
	require.NotEmpty(t, tasks)
	assert.Equal(t, 1, tasks[0].Runs)
	assert.Empty(t, tasks[0].LastError)

	w = adminDo(ts.r, http.MethodGet, "/api/admin/metrics", "secret-key")
	assert.Equal(t, 2, field[int](t, w, "scheduler_tasks"))
}
