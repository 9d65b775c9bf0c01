package models

// Question is an audience question broadcast to all viewers. Rendering is a
// presentation concern; the client only acknowledges delivery.
type Question struct {
	QuestionText string `json:"question_text"`
	AnswerText   string `json:"answer_text,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}
