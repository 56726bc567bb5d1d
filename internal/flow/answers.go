package flow

import "wellping/internal/model"

// AnswerReader is the read side of an answer store.
type AnswerReader interface {
	Answer(questionID string) (*model.Answer, bool)
}

// AnswerStore holds the latest answer per resolved question ID for one
// ping. Later writes for the same ID overwrite earlier ones. It is owned by
// a single session and is not safe for concurrent use.
type AnswerStore struct {
	answers model.AnswersList
}

// NewAnswerStore starts a store from a copy of initial, which may be nil.
func NewAnswerStore(initial model.AnswersList) *AnswerStore {
	return &AnswerStore{answers: initial.Clone()}
}

func (s *AnswerStore) Answer(questionID string) (*model.Answer, bool) {
	a, ok := s.answers[questionID]
	return a, ok && a != nil
}

// Put records a, replacing any earlier answer to the same question.
func (s *AnswerStore) Put(a *model.Answer) {
	s.answers[a.QuestionID] = a.Clone()
}

func (s *AnswerStore) Len() int { return len(s.answers) }

// Snapshot returns a deep copy of every answer.
func (s *AnswerStore) Snapshot() model.AnswersList {
	return s.answers.Clone()
}
