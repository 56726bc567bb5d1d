package model

import "time"

// ExtraData carries variables bound while a frame is active, e.g. the
// current item and its 1-based index during a MultipleText repetition.
type ExtraData map[string]string

// Clone returns an independent copy. A nil map clones to an empty one.
func (e ExtraData) Clone() ExtraData {
	out := make(ExtraData, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// NavigationFrame is a deferred continuation on the navigation stack.
type NavigationFrame struct {
	QuestionID string    `json:"questionId"`
	ExtraData  ExtraData `json:"extraData"`
}

// CurrentQuestionData points at the question being answered. An empty
// QuestionID means there is no current question: the survey is complete
// once the stack is empty too.
type CurrentQuestionData struct {
	QuestionID string    `json:"questionId"`
	ExtraData  ExtraData `json:"extraData"`
}

// SessionState is everything needed to resume a ping exactly where the
// participant left it.
type SessionState struct {
	CurrentQuestionData    CurrentQuestionData `json:"currentQuestionData"`
	NextQuestionsDataStack []NavigationFrame   `json:"nextQuestionsDataStack"`
	Answers                AnswersList         `json:"answers"`
	LastUploadDate         *time.Time          `json:"lastUploadDate"`
}

// CloneFrames deep-copies a navigation stack.
func CloneFrames(frames []NavigationFrame) []NavigationFrame {
	out := make([]NavigationFrame, len(frames))
	for i, f := range frames {
		out[i] = NavigationFrame{QuestionID: f.QuestionID, ExtraData: f.ExtraData.Clone()}
	}
	return out
}
