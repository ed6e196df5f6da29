package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fixen7/lifequest-app/api/rest"
	"github.com/Fixen7/lifequest-app/audit"
	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/config"
	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/player"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/Fixen7/lifequest-app/scheduler"
	"github.com/Fixen7/lifequest-app/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "rest-test-secret"

var testSec = config.SecurityConfig{JWTSecret: testSecret, JWTTTL: time.Hour}

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// flakyStore fails merge writes while failing is set.
type flakyStore struct {
	docstore.Store
	failing atomic.Bool
}

func (f *flakyStore) MergeWrite(ctx context.Context, path string, fields docstore.Fields) error {
	if f.failing.Load() {
		return errors.New("store unavailable")
	}
	return f.Store.MergeWrite(ctx, path, fields)
}

type testServer struct {
	r       *gin.Engine
	sm      *player.SessionManager
	cache   cache.Cache
	pubsub  cache.PubSub
	store   *flakyStore
	sched   *scheduler.Scheduler
	clock   *daily.FixedClock
	journal *audit.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := nopLogger()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	docs, err := docstore.New(docstore.BackendCache, nil, c, ps, logger)
	require.NoError(t, err)
	store := &flakyStore{Store: docs}

	journal := audit.New(db, logger)
	t.Cleanup(func() { journal.Stop(context.Background()) })

	clock := daily.NewFixedClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	sm := player.NewSessionManager(&player.Deps{
		Docs:    store,
		Cache:   c,
		PubSub:  ps,
		Journal: journal,
		Desires: daily.DefaultDesires,
		Gate:    daily.NewGate(clock, time.UTC),
		Game:    config.Default().Game,
		Logger:  logger,
	})
	t.Cleanup(sm.CloseAllSessions)

	sched := scheduler.New(logger, time.UTC, time.Minute)
	t.Cleanup(sched.Stop)
	require.NoError(t, rest.RegisterJobs(sched, sm, config.Default().Scheduler))

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	authG := api.Group("/auth", mw.Auth(testSec, c))
	authH := rest.NewAuthHandler(c, testSec)
	authG.POST("/logout", authH.Logout)
	authG.POST("/refresh", authH.Refresh)

	rest.NewPlayerHandler(sm, c, journal, logger).Register(api.Group("", mw.Auth(testSec, c)))

	adminH := rest.NewAdminHandler(sm, sched, logger)
	adminG := api.Group("/admin", rest.AdminAuth("secret-key"))
	adminG.GET("/metrics", adminH.Metrics)
	adminG.GET("/sessions", adminH.ListSessions)
	adminG.POST("/sessions/:user/close", adminH.CloseSession)
	adminG.POST("/rollover", adminH.Rollover)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)

	return &testServer{
		r:       r,
		sm:      sm,
		cache:   c,
		pubsub:  ps,
		store:   store,
		sched:   sched,
		clock:   clock,
		journal: journal,
	}
}

func tokenFor(t *testing.T, user string) string {
	t.Helper()
	tok, err := mw.GenerateToken(user, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func field[T any](t *testing.T, w *httptest.ResponseRecorder, key string) T {
	t.Helper()
	var v T
	raw, ok := decode(t, w)[key]
	require.True(t, ok, "missing %q in %s", key, w.Body.String())
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
