package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Fixen7/lifequest-app/config"
	"github.com/Fixen7/lifequest-app/game/player"
	"github.com/Fixen7/lifequest-app/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	sm     *player.SessionManager
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(sm *player.SessionManager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sm: sm, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"live_sessions":   h.sm.Count(),
		"scheduler_tasks": len(h.sched.Tasks()),
	})
}

// ListSessions returns a snapshot of all live sessions.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions := h.sm.All()
	type sessionInfo struct {
		UserID    string    `json:"user_id"`
		Ready     bool      `json:"ready"`
		IdleSince time.Time `json:"idle_since"`
	}
	result := make([]sessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, sessionInfo{
			UserID:    s.UserID,
			Ready:     s.Ready(),
			IdleSince: s.IdleSince(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": result, "count": len(result)})
}

// CloseSession stops a user's session. The next request reloads it from
// the store.
// POST /api/admin/sessions/:user/close
func (h *AdminHandler) CloseSession(c *gin.Context) {
	userID := c.Param("user")
	s := h.sm.Get(userID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not live"})
		return
	}
	s.Close()
	h.logger.Info("admin closed session", zap.String("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Rollover runs the daily rollover job now, subject to the per-day lock.
// POST /api/admin/rollover
func (h *AdminHandler) Rollover(c *gin.Context) {
	err := h.sched.RunNow(c.Request.Context(), RolloverJob)
	if errors.Is(err, scheduler.ErrStillRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("admin rollover failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns the status of every scheduled job and the next
// run of the daily rollover.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	body := gin.H{"tasks": h.sched.Tasks()}
	if next, ok := h.sched.Next(RolloverJob); ok {
		body["next_rollover"] = next
	}
	c.JSON(http.StatusOK, body)
}

const (
	// RolloverJob names the cron job that runs the daily rollover.
	RolloverJob = "daily_rollover"
	// IdleSweepJob names the ticker that closes idle sessions.
	IdleSweepJob = "idle_sweep"
)

// RegisterJobs schedules the daily rollover and the idle-session sweep.
func RegisterJobs(sched *scheduler.Scheduler, sm *player.SessionManager, cfg config.SchedulerConfig) error {
	if err := sched.AddCron(RolloverJob, cfg.DailyRolloverCron, sm.Rollover); err != nil {
		return err
	}
	sched.AddTicker(IdleSweepJob, cfg.IdleSweep, func(context.Context) error {
		sm.SweepIdle(cfg.IdleTimeout)
		return nil
	})
	return nil
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
