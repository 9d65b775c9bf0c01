package models

// Quiz is a multiple-choice quiz delivered during a live session.
// CorrectOption stays nil until the result is revealed; SelectedOption is
// the viewer's own choice once submitted.
type Quiz struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	CorrectOption  *int     `json:"correct_option,omitempty"`
	SelectedOption *int     `json:"selected_option,omitempty"`
}

// QuizResult carries the revealed outcome for a quiz.
type QuizResult struct {
	QuizID         string `json:"quiz_id"`
	CorrectOption  int    `json:"correct_option"`
	SelectedOption int    `json:"selected_option"`
}
