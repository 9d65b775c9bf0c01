// Package reconciler owns the single source of truth for the current
// session id, merging the push channel's fast path with the polling
// backstop and driving playback and quiz state accordingly.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/visiolive/spectator/internal/models"
	"github.com/visiolive/spectator/internal/transport"
)

// ErrNoSession is returned when an operation needs a current session and
// there is none.
var ErrNoSession = errors.New("no live session")

// Player is the playback engine surface the reconciler drives.
type Player interface {
	Start(url string)
	Stop()
}

// QuizPresenter is the quiz state machine surface the reconciler drives.
type QuizPresenter interface {
	Present(quiz models.Quiz)
	Reveal(result models.QuizResult)
	Delete(quizID string)
	Clear()
}

// SessionAPI is the polling client.
type SessionAPI interface {
	CurrentSession(ctx context.Context) (*models.Session, error)
	SessionQuizzes(ctx context.Context, sessionID string) ([]models.Quiz, error)
}

// Announcer emits session-scoped traffic on the push channel.
type Announcer interface {
	EmitJoinSession(sessionID string)
	EmitQuestion(sessionID, text string)
}

// Hooks are optional observability callbacks.
type Hooks struct {
	OnPollError    func()
	OnPushEvent    func(event string)
	OnSessionState func(active bool)
}

// Options configure the reconciler.
type Options struct {
	PollInterval  time.Duration
	StreamBaseURL string // base for stream_key locators
	Hooks         Hooks
}

// Reconciler merges session identity reports from polling and push events.
// Acceptance is keyed purely on session-id difference, never on which
// source reported it, so the two channels cannot diverge. All business
// logic runs on the single Run goroutine; polling ticks are strictly
// sequential because each tick is handled inline before the next select.
type Reconciler struct {
	api       SessionAPI
	engine    Player
	spectator Player
	quiz      QuizPresenter
	announcer Announcer
	events    <-chan transport.Message
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	sessionID string
	notice    string
}

// New creates a session reconciler. spectator may be nil when no secondary
// surface exists.
func New(
	api SessionAPI,
	engine Player,
	spectator Player,
	quiz QuizPresenter,
	announcer Announcer,
	events <-chan transport.Message,
	opts Options,
	logger *zap.Logger,
) *Reconciler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Reconciler{
		api:       api,
		engine:    engine,
		spectator: spectator,
		quiz:      quiz,
		announcer: announcer,
		events:    events,
		opts:      opts,
		logger:    logger,
	}
}

// Run polls and dispatches push events until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.checkSession(ctx)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.checkSession(ctx)
		case msg, ok := <-r.events:
			if !ok {
				return errors.New("push channel closed")
			}
			r.dispatch(ctx, msg)
		}
	}
}

// checkSession is one polling tick: fetch the authoritative snapshot and
// reconcile. Poll failures are transient by definition; the client keeps
// going.
func (r *Reconciler) checkSession(ctx context.Context) {
	session, err := r.api.CurrentSession(ctx)
	if err != nil {
		if r.opts.Hooks.OnPollError != nil {
			r.opts.Hooks.OnPollError()
		}
		r.logger.Warn("session poll failed", zap.Error(err))
		r.setNotice("server unreachable")
		return
	}
	r.applySessionReport(ctx, session)
}

// applySessionReport is the single acceptance path for both sources.
func (r *Reconciler) applySessionReport(ctx context.Context, session *models.Session) {
	current := r.currentID()

	if session == nil {
		if current != "" {
			r.setSessionID("")
			r.engine.Stop()
			r.quiz.Clear()
			r.logger.Info("session ended", zap.String("session_id", current))
			if r.opts.Hooks.OnSessionState != nil {
				r.opts.Hooks.OnSessionState(false)
			}
		}
		r.setNotice("no live session")
		return
	}

	if session.ID == current {
		return
	}

	r.setSessionID(session.ID)
	r.logger.Info("session accepted",
		zap.String("session_id", session.ID),
		zap.String("previous", current),
	)
	if current != "" {
		// The replaced session's quiz must not linger into the new one.
		r.quiz.Clear()
	}
	if r.opts.Hooks.OnSessionState != nil {
		r.opts.Hooks.OnSessionState(true)
	}
	r.setNotice("")

	// Join before starting playback so no push events are missed during
	// the playback handshake window.
	r.announcer.EmitJoinSession(session.ID)
	r.engine.Start(r.streamURL(session.StreamKey, session.HLSURL))
	r.fetchQuizzes(ctx, session.ID)
}

func (r *Reconciler) fetchQuizzes(ctx context.Context, sessionID string) {
	quizzes, err := r.api.SessionQuizzes(ctx, sessionID)
	if err != nil {
		r.logger.Warn("quiz fetch failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if len(quizzes) == 0 {
		r.logger.Debug("no quizzes for session", zap.String("session_id", sessionID))
		return
	}
	// The last element is the current quiz.
	r.quiz.Present(quizzes[len(quizzes)-1])
}

func (r *Reconciler) dispatch(ctx context.Context, msg transport.Message) {
	if r.opts.Hooks.OnPushEvent != nil {
		r.opts.Hooks.OnPushEvent(msg.Event)
	}

	// Quiz traffic is meaningless outside a session; a straggler arriving
	// after the session ended must not re-open the widget.
	switch msg.Event {
	case transport.EventNewQuiz, transport.EventQuizResult,
		transport.EventNewQuizResponse, transport.EventQuizDeleted:
		if r.currentID() == "" {
			r.logger.Debug("dropping quiz event, no session", zap.String("event", msg.Event))
			return
		}
	}

	switch msg.Event {
	case transport.EventConnect:
		// The push channel just (re)appeared; re-check the authoritative
		// snapshot immediately rather than waiting out the poll interval.
		r.setNotice("connected")
		r.checkSession(ctx)

	case transport.EventDisconnect:
		r.setNotice("push channel disconnected")

	case transport.EventNewQuiz:
		var quiz models.Quiz
		if err := json.Unmarshal(msg.Data, &quiz); err != nil {
			r.logger.Warn("bad quiz payload", zap.Error(err))
			return
		}
		r.quiz.Present(quiz)

	case transport.EventQuizResult, transport.EventNewQuizResponse:
		var payload transport.QuizResultPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			r.logger.Warn("bad quiz result payload", zap.Error(err))
			return
		}
		if payload.CorrectOption == nil {
			// Room-wide rebroadcast of another viewer's answer; there is no
			// result in it to reveal.
			r.logger.Debug("answer broadcast without result", zap.String("quiz_id", payload.QuizID))
			return
		}
		r.quiz.Reveal(models.QuizResult{
			QuizID:         payload.QuizID,
			CorrectOption:  *payload.CorrectOption,
			SelectedOption: payload.SelectedOption,
		})

	case transport.EventQuizDeleted:
		var payload transport.QuizDeletedPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			r.logger.Warn("bad quiz deleted payload", zap.Error(err))
			return
		}
		r.quiz.Delete(payload.QuizID)

	case transport.EventSpectatorApproved:
		var payload transport.SpectatorStreamPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			r.logger.Warn("bad spectator payload", zap.Error(err))
			return
		}
		if r.spectator != nil {
			r.spectator.Start(r.streamURL(payload.StreamKey, ""))
		}

	case transport.EventSpectatorStopped:
		if r.spectator != nil {
			r.spectator.Stop()
		}

	case transport.EventNewQuestion, transport.EventNewAnswer:
		// Rendering is the presentation layer's job; acknowledge delivery.
		var question models.Question
		if err := json.Unmarshal(msg.Data, &question); err != nil {
			r.logger.Warn("bad question payload", zap.Error(err))
			return
		}
		r.logger.Info("audience question",
			zap.String("event", msg.Event),
			zap.String("question_text", question.QuestionText),
			zap.String("answer_text", question.AnswerText),
		)

	case transport.EventToggleQRCode:
		r.logger.Debug("render event", zap.String("event", msg.Event))

	default:
		r.logger.Debug("ignoring event", zap.String("event", msg.Event))
	}
}

// SendQuestion emits an audience question for the current session.
func (r *Reconciler) SendQuestion(text string) error {
	sessionID := r.currentID()
	if sessionID == "" {
		return ErrNoSession
	}
	r.announcer.EmitQuestion(sessionID, text)
	return nil
}

// CurrentSession reports the tracked session id and whether one is active.
// Safe from any goroutine; used as the quiz machine's session check.
func (r *Reconciler) CurrentSession() (string, bool) {
	id := r.currentID()
	return id, id != ""
}

// Notice returns the current short status text.
func (r *Reconciler) Notice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

func (r *Reconciler) streamURL(streamKey, hlsURL string) string {
	if hlsURL != "" {
		return hlsURL
	}
	return fmt.Sprintf("%s/%s.m3u8", strings.TrimRight(r.opts.StreamBaseURL, "/"), streamKey)
}

func (r *Reconciler) currentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Reconciler) setSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

func (r *Reconciler) setNotice(notice string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notice = notice
}
