// Package flow implements the survey flow engine: the question graph, the
// per-ping answer store, placeholder resolution and the navigation stack
// state machine.
package flow

import (
	"sort"

	"wellping/internal/model"
)

// Graph is the immutable set of questions of one stream, keyed by ID.
type Graph struct {
	questions model.QuestionsList
}

// NewGraph copies the question map so later changes to it do not leak
// into the graph. Questions themselves are shared and must not be mutated.
func NewGraph(questions model.QuestionsList) *Graph {
	g := &Graph{questions: make(model.QuestionsList, len(questions))}
	for id, q := range questions {
		g.questions[id] = q
	}
	return g
}

// Question returns the question with the given ID.
func (g *Graph) Question(id string) (*model.Question, bool) {
	q, ok := g.questions[id]
	return q, ok && q != nil
}

func (g *Graph) Len() int { return len(g.questions) }

// IDs returns the question IDs in lexical order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.questions))
	for id := range g.questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
