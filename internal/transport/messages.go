package transport

import "encoding/json"

// Message is the push-channel message envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Synthetic events delivered by the socket itself, alongside server pushes.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Server-to-client event names.
const (
	EventNewQuiz           = "new_quiz"
	EventQuizResult        = "quiz_result"
	EventNewQuizResponse   = "new_quiz_response"
	EventQuizDeleted       = "quiz_deleted"
	EventNewQuestion       = "new_question"
	EventNewAnswer         = "new_answer"
	EventSpectatorApproved = "spectator_approved"
	EventSpectatorStopped  = "spectator_stream_stopped"
	EventToggleQRCode      = "toggle_qr_code"
)

// Client-to-server event names.
const (
	EventJoinSession       = "join_session"
	EventQuestion          = "question"
	EventQuizResponse      = "quiz_response"
	EventRequestQuizResult = "request_quiz_result"
)

// JoinSessionPayload joins the viewer to a session's event room.
type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
}

// QuestionPayload submits an audience question.
type QuestionPayload struct {
	SessionID    string `json:"session_id"`
	QuestionText string `json:"question_text"`
}

// QuizResponsePayload submits the viewer's quiz answer.
type QuizResponsePayload struct {
	SessionID      string `json:"session_id"`
	QuizID         string `json:"quiz_id"`
	SelectedOption int    `json:"selected_option"`
}

// RequestQuizResultPayload asks the server to re-send a quiz result.
type RequestQuizResultPayload struct {
	QuizID string `json:"quiz_id"`
}

// QuizResultPayload carries a quiz outcome. CorrectOption is absent on the
// room-wide rebroadcast of another viewer's answer; only a payload that has
// it can reveal anything.
type QuizResultPayload struct {
	QuizID         string `json:"quiz_id"`
	CorrectOption  *int   `json:"correct_option"`
	SelectedOption int    `json:"selected_option"`
}

// QuizDeletedPayload announces a server-side quiz deletion.
type QuizDeletedPayload struct {
	QuizID string `json:"quiz_id"`
}

// SpectatorStreamPayload carries the secondary (spectator) stream key.
type SpectatorStreamPayload struct {
	StreamKey string `json:"stream_key"`
}
