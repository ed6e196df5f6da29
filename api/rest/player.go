package rest

import (
	"net/http"
	"strconv"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/audit"
	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/game/player"
	"github.com/Fixen7/lifequest-app/game/quest"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionKey       = "player_session"
	defaultListLimit = 20
	maxListLimit     = 50
	maxSuggestions   = 10
)

// PlayerHandler exposes the player session operations over REST.
type PlayerHandler struct {
	sm      *player.SessionManager
	cache   cache.Cache
	journal *audit.Service
	logger  *zap.Logger
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(sm *player.SessionManager, c cache.Cache, journal *audit.Service, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{sm: sm, cache: c, journal: journal, logger: logger}
}

// Session attaches the caller's loaded session to the request. It must run
// after mw.Auth.
func (h *PlayerHandler) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := mw.GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		s, err := h.sm.Acquire(c.Request.Context(), userID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func session(c *gin.Context) *player.Session {
	return c.MustGet(sessionKey).(*player.Session)
}

// Stats handles GET /api/stats.
func (h *PlayerHandler) Stats(c *gin.Context) {
	l, err := session(c).Stats(c.Request.Context())
	respond(c, h.logger, "stats", l, err)
}

// ListObjectives handles GET /api/objectives.
func (h *PlayerHandler) ListObjectives(c *gin.Context) {
	objs, err := session(c).Objectives(c.Request.Context())
	respond(c, h.logger, "objectives", objs, err)
}

// CreateObjective handles POST /api/objectives.
func (h *PlayerHandler) CreateObjective(c *gin.Context) {
	var req quest.ObjectiveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := session(c).CreateObjective(c.Request.Context(), req)
	respond(c, h.logger, "objective", o, err)
}

// SelectCurrent handles POST /api/objectives/:id/select.
func (h *PlayerHandler) SelectCurrent(c *gin.Context) {
	o, err := session(c).SelectCurrent(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "objective", o, err)
}

// CompleteObjective handles POST /api/objectives/:id/complete.
func (h *PlayerHandler) CompleteObjective(c *gin.Context) {
	out, err := session(c).CompleteObjective(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "result", out, err)
}

// DeleteObjective handles DELETE /api/objectives/:id.
func (h *PlayerHandler) DeleteObjective(c *gin.Context) {
	err := session(c).DeleteObjective(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "deleted", c.Param("id"), err)
}

// SuggestSubtasks handles GET /api/objectives/:id/suggestions?n=3.
func (h *PlayerHandler) SuggestSubtasks(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "3"))
	if err != nil || n < 1 || n > maxSuggestions {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be between 1 and 10"})
		return
	}
	subs, err := session(c).SuggestSubtasks(c.Request.Context(), c.Param("id"), n)
	respond(c, h.logger, "suggestions", subs, err)
}

// Illustrate handles GET /api/objectives/:id/image.
func (h *PlayerHandler) Illustrate(c *gin.Context) {
	url, err := session(c).Illustrate(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "image", url, err)
}

// AddSubtask handles POST /api/subtasks. The subtask joins the current
// objective.
func (h *PlayerHandler) AddSubtask(c *gin.Context) {
	var req quest.SubtaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := session(c).AddSubtask(c.Request.Context(), req)
	respond(c, h.logger, "subtask", st, err)
}

// EditSubtask handles PATCH /api/subtasks/:id.
func (h *PlayerHandler) EditSubtask(c *gin.Context) {
	var req quest.SubtaskPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := session(c).EditSubtask(c.Request.Context(), c.Param("id"), req)
	respond(c, h.logger, "subtask", st, err)
}

// ToggleSubtask handles POST /api/subtasks/:id/toggle.
func (h *PlayerHandler) ToggleSubtask(c *gin.Context) {
	out, err := session(c).ToggleSubtask(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "result", out, err)
}

// DeleteSubtask handles DELETE /api/subtasks/:id.
func (h *PlayerHandler) DeleteSubtask(c *gin.Context) {
	err := session(c).DeleteSubtask(c.Request.Context(), c.Param("id"))
	respond(c, h.logger, "deleted", c.Param("id"), err)
}

// ClaimDailyReward handles POST /api/daily-reward. A claim inside the
// cooldown is answered 200 with claimed=false and the seconds remaining.
func (h *PlayerHandler) ClaimDailyReward(c *gin.Context) {
	res, err := session(c).ClaimDailyReward(c.Request.Context())
	if err == nil && !res.Claimed {
		c.JSON(http.StatusOK, gin.H{
			"reward":            res,
			"remaining_seconds": int64(res.Remaining.Seconds()),
		})
		return
	}
	respond(c, h.logger, "reward", res, err)
}

type satisfactionRequest struct {
	Value *int `json:"value" binding:"required"`
}

// RecordSatisfaction handles POST /api/satisfaction.
func (h *PlayerHandler) RecordSatisfaction(c *gin.Context) {
	var req satisfactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := session(c).RecordSatisfaction(c.Request.Context(), *req.Value)
	respond(c, h.logger, "progress", p, err)
}

// FinishPomodoro handles POST /api/pomodoro.
func (h *PlayerHandler) FinishPomodoro(c *gin.Context) {
	p, err := session(c).FinishPomodoro(c.Request.Context())
	respond(c, h.logger, "progress", p, err)
}

// Rest handles POST /api/rest.
func (h *PlayerHandler) Rest(c *gin.Context) {
	p, err := session(c).Rest(c.Request.Context())
	respond(c, h.logger, "progress", p, err)
}

// CompleteTutorial handles POST /api/tutorial.
func (h *PlayerHandler) CompleteTutorial(c *gin.Context) {
	p, err := session(c).CompleteTutorial(c.Request.Context())
	respond(c, h.logger, "progress", p, err)
}

// DailyDesire handles GET /api/desire.
func (h *PlayerHandler) DailyDesire(c *gin.Context) {
	d, err := session(c).DailyDesire(c.Request.Context())
	respond(c, h.logger, "desire", d, err)
}

// CompleteDesire handles POST /api/desire/complete.
func (h *PlayerHandler) CompleteDesire(c *gin.Context) {
	out, err := session(c).CompleteDesire(c.Request.Context())
	respond(c, h.logger, "result", out, err)
}

// Advice handles GET /api/advice.
func (h *PlayerHandler) Advice(c *gin.Context) {
	text, err := session(c).Advice(c.Request.Context())
	respond(c, h.logger, "advice", text, err)
}

// Notifications handles GET /api/notifications?limit=20. It reads the
// backlog only, so it does not need a live session.
func (h *PlayerHandler) Notifications(c *gin.Context) {
	limit, ok := listLimit(c)
	if !ok {
		return
	}
	list, err := player.Backlog(c.Request.Context(), h.cache, mw.GetUserID(c), limit)
	respond(c, h.logger, "notifications", list, err)
}

// Journal handles GET /api/journal?limit=20.
func (h *PlayerHandler) Journal(c *gin.Context) {
	if h.journal == nil {
		respond(c, h.logger, "entries", nil, apperr.NotFound("journal", "disabled"))
		return
	}
	limit, ok := listLimit(c)
	if !ok {
		return
	}
	entries, err := h.journal.Recent(c.Request.Context(), mw.GetUserID(c), limit)
	respond(c, h.logger, "entries", entries, err)
}

func listLimit(c *gin.Context) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
		return 0, false
	}
	return limit, true
}

// Register mounts the player routes on g. g must already carry mw.Auth.
func (h *PlayerHandler) Register(g *gin.RouterGroup) {
	g.GET("/notifications", h.Notifications)
	g.GET("/journal", h.Journal)

	s := g.Group("", h.Session())
	s.GET("/stats", h.Stats)
	s.GET("/objectives", h.ListObjectives)
	s.POST("/objectives", h.CreateObjective)
	s.POST("/objectives/:id/select", h.SelectCurrent)
	s.POST("/objectives/:id/complete", h.CompleteObjective)
	s.DELETE("/objectives/:id", h.DeleteObjective)
	s.GET("/objectives/:id/suggestions", h.SuggestSubtasks)
	s.GET("/objectives/:id/image", h.Illustrate)
	s.POST("/subtasks", h.AddSubtask)
	s.PATCH("/subtasks/:id", h.EditSubtask)
	s.POST("/subtasks/:id/toggle", h.ToggleSubtask)
	s.DELETE("/subtasks/:id", h.DeleteSubtask)
	s.POST("/daily-reward", h.ClaimDailyReward)
	s.POST("/satisfaction", h.RecordSatisfaction)
	s.POST("/pomodoro", h.FinishPomodoro)
	s.POST("/rest", h.Rest)
	s.POST("/tutorial", h.CompleteTutorial)
	s.GET("/desire", h.DailyDesire)
	s.POST("/desire/complete", h.CompleteDesire)
	s.GET("/advice", h.Advice)
}
