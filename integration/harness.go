package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/Fixen7/lifequest-app/api/rest"
	"github.com/Fixen7/lifequest-app/api/sse"
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
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Shared is the infrastructure several server instances of one deployment
// have in common.
type Shared struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Docs   docstore.Store
	Clock  *daily.FixedClock
}

// NewShared creates the database, cache, pub/sub and SQL document store.
func NewShared(t *testing.T) *Shared {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	docs, err := docstore.New(docstore.BackendSQL, db, c, pubsub, zap.NewNop())
	require.NoError(t, err)
	return &Shared{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Docs:   docs,
		Clock:  daily.NewFixedClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)),
	}
}

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	*Shared
	SM     *player.SessionManager
	Sched  *scheduler.Scheduler
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig

	journal *audit.Service
	sse     *sse.Handler
}

// NewTestServer creates a fully wired server on fresh infrastructure.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewInstance(t, NewShared(t))
}

// NewInstance creates one server instance on top of sh. It mirrors the
// dependency wiring in server.go.
func NewInstance(t *testing.T, sh *Shared) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTL:         72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	journal := audit.New(sh.DB, logger)
	sm := player.NewSessionManager(&player.Deps{
		Docs:    sh.Docs,
		Cache:   sh.Cache,
		PubSub:  sh.PubSub,
		Journal: journal,
		Desires: daily.DefaultDesires,
		Gate:    daily.NewGate(sh.Clock, time.UTC),
		Game:    config.Default().Game,
		Logger:  logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sm.ListenRollover(ctx))

	sched := scheduler.New(logger, time.UTC, time.Minute)
	require.NoError(t, apirest.RegisterJobs(sched, sm, config.Default().Scheduler))

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sm.Count()})
	})

	auth := mw.Auth(sec, sh.Cache)
	authH := apirest.NewAuthHandler(sh.Cache, sec)
	playerH := apirest.NewPlayerHandler(sm, sh.Cache, journal, logger)
	adminH := apirest.NewAdminHandler(sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth", auth)
		authG.POST("/logout", authH.Logout)
		authG.POST("/refresh", authH.Refresh)

		playerH.Register(api.Group("", auth, mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)))

		adminG := api.Group("/admin", mw.IPWhitelist([]string{"127.0.0.1", "::1"}), apirest.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/rollover", adminH.Rollover)
	}

	sseH := sse.NewHandler(sh.PubSub, logger)
	r.GET("/sse", auth, sseH.ServeSSE)

	server := httptest.NewServer(r)
	ts := &TestServer{
		Shared:  sh,
		SM:      sm,
		Sched:   sched,
		Server:  server,
		URL:     server.URL,
		Sec:     sec,
		journal: journal,
		sse:     sseH,
	}
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts
}

// AdminKey is the X-Admin-Key accepted by test instances.
const AdminKey = "integration-admin-key"

// Close shuts down the test server and all subsystems.
func (ts *TestServer) Close() {
	ts.sse.Shutdown()
	ts.Server.Close()
	ts.Sched.Stop()
	ts.SM.CloseAllSessions()
	ts.journal.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if strings.HasPrefix(path, "/api/admin") {
		req.Header.Set("X-Admin-Key", AdminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, nil, token)
}

// Patch sends a PATCH request with JSON body and optional Bearer token.
func (ts *TestServer) Patch(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPatch, path, body, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Expect asserts the status code and decodes the body field key into target.
func Expect(t *testing.T, resp *http.Response, status int, key string, target interface{}) {
	t.Helper()
	var body map[string]json.RawMessage
	ReadJSON(t, resp, &body)
	require.Equal(t, status, resp.StatusCode, "body: %v", body)
	if target == nil {
		return
	}
	raw, ok := body[key]
	require.True(t, ok, "missing %q", key)
	require.NoError(t, json.Unmarshal(raw, target))
}

// Fetch GETs path and decodes field key into target, reporting success
// instead of failing the test. It is safe inside assert.Eventually.
func (ts *TestServer) Fetch(path, token, key string, target interface{}) bool {
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	var body map[string]json.RawMessage
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
		return false
	}
	raw, ok := body[key]
	return ok && json.Unmarshal(raw, target) == nil
}

// --- Auth helpers ---

// Token issues a token for user the way the external sign-in flow would.
func (ts *TestServer) Token(t *testing.T, user string) string {
	t.Helper()
	tok, err := mw.GenerateToken(user, ts.Sec.JWTSecret, ts.Sec.JWTTTL)
	require.NoError(t, err)
	return tok
}

var idSeq atomic.Int64

// UniqueID returns a prefix-qualified id unique within the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, idSeq.Add(1))
}

// --- SSE client ---

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// SSEClient reads a /sse stream in a background loop.
type SSEClient struct {
	t      *testing.T
	cancel context.CancelFunc
	events chan Event
}

// ConnectSSE opens the notification stream and waits for the connected
// event, so later notifications are not missed.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?access_token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c := &SSEClient{t: t, cancel: cancel, events: make(chan Event, 64)}
	go c.readLoop(resp.Body)
	t.Cleanup(c.Close)

	ev := c.Next(2 * time.Second)
	require.Equal(t, "connected", ev.Name)
	return c
}

func (c *SSEClient) readLoop(body io.ReadCloser) {
	defer close(c.events)
	defer body.Close()
	rd := bufio.NewReader(body)
	var ev Event
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.Name != "" {
				c.events <- ev
			}
			ev = Event{}
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Next returns the next event or fails the test after timeout.
func (c *SSEClient) Next(timeout time.Duration) Event {
	c.t.Helper()
	select {
	case ev, ok := <-c.events:
		require.True(c.t, ok, "sse stream closed")
		return ev
	case <-time.After(timeout):
		c.t.Fatal("timed out waiting for sse event")
		return Event{}
	}
}

// WaitFor skips events until one named name arrives.
func (c *SSEClient) WaitFor(name string, timeout time.Duration) player.Notification {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			c.t.Fatalf("no %s event within %s", name, timeout)
		}
		ev := c.Next(left)
		if ev.Name != name {
			continue
		}
		n, err := player.DecodeNotification(ev.Data)
		require.NoError(c.t, err)
		return n
	}
}

// Close ends the stream.
func (c *SSEClient) Close() { c.cancel() }
