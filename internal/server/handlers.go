package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ttyflow/backend/internal/session"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ttyflow-backend",
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var opts session.CreateOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	info, err := s.sessions.Create(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.metrics.SessionsTotal.Inc()
	s.metrics.SessionsActive.Inc()
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.List()})
}

func (s *Server) handleGetSession(c *gin.Context) {
	info, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleKillSession(c *gin.Context) {
	if err := s.sessions.Kill(c.Param("id")); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "killed"})
}

func (s *Server) handleResizeSession(c *gin.Context) {
	var req struct {
		Cols int `json:"cols" binding:"required,min=1"`
		Rows int `json:"rows" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cols and rows are required"})
		return
	}

	if err := s.sessions.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resized"})
}

// handleSessionMetrics reports the flow engine snapshot for a session's
// attached stream. Polling this endpoint is how the IDE surfaces buffer
// and throttle state without subscribing to the stream itself.
func (s *Server) handleSessionMetrics(c *gin.Context) {
	metrics, err := s.sessions.EngineMetrics(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// sessionError maps the session manager's sentinel errors onto HTTP
// statuses.
func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotAttached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
