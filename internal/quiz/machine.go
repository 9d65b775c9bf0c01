// Package quiz tracks the lifecycle of the current quiz and enforces the
// at-most-once answer guarantee, backed by a durable answered-quiz ledger.
package quiz

import (
	"sync"

	"go.uber.org/zap"

	"github.com/visiolive/spectator/internal/models"
)

// ViewState is the derived presentation state of the current quiz. It is
// never stored; it follows from the quiz and the ledger.
type ViewState string

const (
	// ViewNone means no quiz is tracked.
	ViewNone ViewState = "none"
	// ViewOpen means the quiz accepts input.
	ViewOpen ViewState = "open"
	// ViewAnsweredPendingResult means an answer was submitted but the
	// correct answer is not yet known.
	ViewAnsweredPendingResult ViewState = "answered_pending_result"
	// ViewRevealed means correct and selected options are both known;
	// input is disabled permanently for this quiz.
	ViewRevealed ViewState = "revealed"
)

// Emitter sends quiz traffic to the transport layer.
type Emitter interface {
	EmitQuizResponse(sessionID, quizID string, selectedOption int)
	EmitRequestQuizResult(quizID string)
}

// SessionFunc reports the current session id and whether one is active.
// Supplied by the session reconciler.
type SessionFunc func() (string, bool)

// Snapshot is a read-only view of the machine for status reporting.
type Snapshot struct {
	State ViewState    `json:"state"`
	Quiz  *models.Quiz `json:"quiz,omitempty"`
}

// Machine is the per-viewer quiz state machine. All guards are state
// checks, not locks: a double-activation or a result racing a submission
// resolves to a silent no-op, never an error.
type Machine struct {
	ledger  *Ledger
	emitter Emitter
	session SessionFunc
	logger  *zap.Logger

	mu      sync.Mutex
	current *models.Quiz
	state   ViewState
}

// NewMachine creates a quiz state machine.
func NewMachine(ledger *Ledger, emitter Emitter, session SessionFunc, logger *zap.Logger) *Machine {
	return &Machine{
		ledger:  ledger,
		emitter: emitter,
		session: session,
		logger:  logger,
		state:   ViewNone,
	}
}

// Present makes quiz the tracked quiz. If the ledger already holds its id
// the machine goes straight to answered-pending-result and asks the server
// for the result: the ledger only remembers that an answer was given, the
// server remains the source of truth for what the correct answer is.
func (m *Machine) Present(quiz models.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()

	answered, err := m.ledger.Has(quiz.ID)
	if err != nil {
		m.logger.Warn("ledger lookup failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
	}

	q := quiz
	m.current = &q
	if answered {
		m.state = ViewAnsweredPendingResult
		m.logger.Info("quiz already answered, requesting result", zap.String("quiz_id", quiz.ID))
		m.emitter.EmitRequestQuizResult(quiz.ID)
		return
	}
	m.state = ViewOpen
	m.logger.Info("quiz open", zap.String("quiz_id", quiz.ID), zap.Int("options", len(quiz.Options)))
}

// Submit records the viewer's answer. Valid only while the tracked quiz is
// open, the id matches, the option exists, and a session is current;
// anything else is a silent no-op so rapid double-activation or a stale UI
// cannot double-submit. An accepted submission writes the ledger, moves to
// answered-pending-result, and emits exactly one quiz_response.
func (m *Machine) Submit(quizID string, selectedOption int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != ViewOpen || m.current == nil || m.current.ID != quizID {
		m.logger.Debug("submission ignored", zap.String("quiz_id", quizID), zap.String("state", string(m.state)))
		return
	}
	if selectedOption < 0 || selectedOption >= len(m.current.Options) {
		m.logger.Debug("submission ignored: option out of range", zap.String("quiz_id", quizID), zap.Int("option", selectedOption))
		return
	}
	sessionID, active := m.session()
	if !active {
		m.logger.Debug("submission ignored: no current session", zap.String("quiz_id", quizID))
		return
	}

	if err := m.ledger.Add(quizID); err != nil {
		// Delivery still wins: the in-memory state below blocks repeats
		// for this process; only a reload loses the guard.
		m.logger.Warn("ledger write failed", zap.String("quiz_id", quizID), zap.Error(err))
	}

	opt := selectedOption
	m.current.SelectedOption = &opt
	m.state = ViewAnsweredPendingResult
	m.logger.Info("answer submitted", zap.String("quiz_id", quizID), zap.Int("option", selectedOption))
	m.emitter.EmitQuizResponse(sessionID, quizID, selectedOption)
}

// Reveal applies a result event. Only a result for the tracked quiz id is
// accepted, and only after this viewer has answered: the server broadcasts
// every viewer's answer to the whole room, and a still-open quiz must not
// be spoiled and locked by someone else's submission.
func (m *Machine) Reveal(result models.QuizResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != result.QuizID {
		return
	}
	if m.state != ViewAnsweredPendingResult {
		m.logger.Debug("result ignored", zap.String("quiz_id", result.QuizID), zap.String("state", string(m.state)))
		return
	}

	correct := result.CorrectOption
	selected := result.SelectedOption
	m.current.CorrectOption = &correct
	m.current.SelectedOption = &selected
	m.state = ViewRevealed
	m.logger.Info("quiz result revealed",
		zap.String("quiz_id", result.QuizID),
		zap.Int("correct_option", result.CorrectOption),
		zap.Int("selected_option", result.SelectedOption),
	)
}

// Delete handles a server-side quiz deletion: the tracked quiz is cleared
// and its id leaves the ledger, so a re-issued quiz with the same id is
// answerable again.
func (m *Machine) Delete(quizID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != quizID {
		return
	}
	if err := m.ledger.Remove(quizID); err != nil {
		m.logger.Warn("ledger remove failed", zap.String("quiz_id", quizID), zap.Error(err))
	}
	m.current = nil
	m.state = ViewNone
	m.logger.Info("quiz deleted", zap.String("quiz_id", quizID))
}

// Clear drops the tracked quiz without touching the ledger. Used when the
// session itself ends.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.state = ViewNone
}

// Snapshot returns the current view state for status reporting.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{State: m.state}
	if m.current != nil {
		q := *m.current
		snap.Quiz = &q
	}
	return snap
}
