// Package control exposes the local HTTP surface of the viewer: status,
// question submission, quiz answering and seek-to-live. It stands in for
// the remote-control keys and on-screen status line of a TV client.
package control

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visiolive/spectator/internal/middleware"
	"github.com/visiolive/spectator/internal/playback"
	"github.com/visiolive/spectator/internal/quiz"
	"github.com/visiolive/spectator/internal/reconciler"
	"github.com/visiolive/spectator/pkg/response"
)

// SessionStatus reports the reconciler's view of the world.
type SessionStatus interface {
	CurrentSession() (string, bool)
	Notice() string
	SendQuestion(text string) error
}

// QuizWidget is the quiz machine surface the control API drives.
type QuizWidget interface {
	Submit(quizID string, selectedOption int)
	Snapshot() quiz.Snapshot
}

// PlaybackStatus is the playback engine surface the control API reads.
type PlaybackStatus interface {
	State() playback.State
	URL() string
	SeekToLive() error
}

// QuestionRequest is the body for POST /question.
type QuestionRequest struct {
	Text string `json:"text" binding:"required"`
}

// AnswerRequest is the body for POST /quiz/answer.
type AnswerRequest struct {
	QuizID string `json:"quiz_id" binding:"required"`
	Option *int   `json:"option" binding:"required"`
}

// Handler handles the control API endpoints.
type Handler struct {
	session  SessionStatus
	widget   QuizWidget
	playback PlaybackStatus
	logger   *zap.Logger
}

// NewHandler creates a control API handler.
func NewHandler(session SessionStatus, widget QuizWidget, playback PlaybackStatus, logger *zap.Logger) *Handler {
	return &Handler{session: session, widget: widget, playback: playback, logger: logger}
}

// NewRouter builds the control API router. metricsHandler may be nil.
func NewRouter(h *Handler, metricsHandler http.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/status", h.Status)
	router.POST("/question", h.Question)
	router.POST("/quiz/answer", h.Answer)
	router.POST("/seek-live", h.SeekLive)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	return router
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	sessionID, active := h.session.CurrentSession()
	response.OK(c, gin.H{
		"session_id":     sessionID,
		"session_active": active,
		"notice":         h.session.Notice(),
		"playback":       h.playback.State(),
		"stream_url":     h.playback.URL(),
		"quiz":           h.widget.Snapshot(),
	})
}

// Question handles POST /question (audience question for the current session).
func (h *Handler) Question(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.session.SendQuestion(req.Text); err != nil {
		if errors.Is(err, reconciler.ErrNoSession) {
			response.Conflict(c, "no live session")
			return
		}
		response.Internal(c, "failed to send question")
		return
	}
	response.Accepted(c, gin.H{"sent": true})
}

// Answer handles POST /quiz/answer. Re-answering an already-answered quiz
// yields the same 202 without a second emission.
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.widget.Submit(req.QuizID, *req.Option)
	response.Accepted(c, h.widget.Snapshot())
}

// SeekLive handles POST /seek-live.
func (h *Handler) SeekLive(c *gin.Context) {
	if err := h.playback.SeekToLive(); err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.OK(c, gin.H{"seeking": true})
}
