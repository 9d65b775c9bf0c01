package control

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/visiolive/spectator/internal/models"
	"github.com/visiolive/spectator/internal/playback"
	"github.com/visiolive/spectator/internal/quiz"
	"github.com/visiolive/spectator/internal/reconciler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	id        string
	notice    string
	questions []string
	sendErr   error
}

func (f *fakeSession) CurrentSession() (string, bool) { return f.id, f.id != "" }
func (f *fakeSession) Notice() string                 { return f.notice }
func (f *fakeSession) SendQuestion(text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.questions = append(f.questions, text)
	return nil
}

type fakeWidget struct {
	submits []string
	snap    quiz.Snapshot
}

func (f *fakeWidget) Submit(quizID string, selectedOption int) {
	f.submits = append(f.submits, quizID)
}
func (f *fakeWidget) Snapshot() quiz.Snapshot { return f.snap }

type fakePlayback struct {
	state   playback.State
	url     string
	seekErr error
	seeks   int
}

func (f *fakePlayback) State() playback.State { return f.state }
func (f *fakePlayback) URL() string           { return f.url }
func (f *fakePlayback) SeekToLive() error {
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seeks++
	return nil
}

type harness struct {
	session  *fakeSession
	widget   *fakeWidget
	playback *fakePlayback
	router   *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		session:  &fakeSession{},
		widget:   &fakeWidget{},
		playback: &fakePlayback{state: playback.StateIdle},
	}
	handler := NewHandler(h.session, h.widget, h.playback, zap.NewNop())
	h.router = NewRouter(handler, nil, zap.NewNop())
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusReportsSessionAndPlayback(t *testing.T) {
	h := newHarness(t)
	h.session.id = "s1"
	h.session.notice = "connected"
	h.playback.state = playback.StatePlaying
	h.playback.url = "https://cdn.example.com/live/k1.m3u8"

	w := h.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"session_id":"s1"`)
	assert.Contains(t, body, `"session_active":true`)
	assert.Contains(t, body, `"notice":"connected"`)
	assert.Contains(t, body, `"stream_url":"https://cdn.example.com/live/k1.m3u8"`)
}

func TestQuestionWithoutSessionConflicts(t *testing.T) {
	h := newHarness(t)
	h.session.sendErr = reconciler.ErrNoSession

	w := h.do(http.MethodPost, "/question", `{"text":"when is harvest?"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, h.session.questions)
}

func TestQuestionAccepted(t *testing.T) {
	h := newHarness(t)
	h.session.id = "s1"

	w := h.do(http.MethodPost, "/question", `{"text":"when is harvest?"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"when is harvest?"}, h.session.questions)
}

func TestQuestionRequiresText(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/question", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnswerSubmitsToWidget(t *testing.T) {
	h := newHarness(t)
	h.widget.snap = quiz.Snapshot{State: quiz.ViewAnsweredPendingResult, Quiz: &models.Quiz{ID: "q1"}}

	w := h.do(http.MethodPost, "/quiz/answer", `{"quiz_id":"q1","option":0}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"q1"}, h.widget.submits)
}

func TestAnswerRequiresOption(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/quiz/answer", `{"quiz_id":"q1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.widget.submits)
}

func TestSeekLive(t *testing.T) {
	h := newHarness(t)
	h.playback.state = playback.StatePlaying

	w := h.do(http.MethodPost, "/seek-live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.playback.seeks)
}

func TestSeekLiveConflictsWhenNotPlaying(t *testing.T) {
	h := newHarness(t)
	h.playback.seekErr = assert.AnError

	w := h.do(http.MethodPost, "/seek-live", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}
