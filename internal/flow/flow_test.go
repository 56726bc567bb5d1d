package flow

import (
	"wellping/internal/model"
)

// Helpers shared by the flow tests.

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func linear(id, next string) *model.Question {
	return &model.Question{ID: id, Type: model.QuestionTypeSlider, Prompt: id, Next: next}
}

func newTestEngine(questions ...*model.Question) *Engine {
	list := make(model.QuestionsList, len(questions))
	for _, q := range questions {
		list[q.ID] = q
	}
	g := NewGraph(list)
	return NewEngine(g, NewResolver(g, DefaultResolverConfig()), 0)
}

func at(id string) State {
	return State{Current: model.CurrentQuestionData{QuestionID: id}}
}

func frame(id string, kv ...string) model.NavigationFrame {
	return model.NavigationFrame{QuestionID: id, ExtraData: extra(kv...)}
}

func extra(kv ...string) model.ExtraData {
	e := model.ExtraData{}
	for i := 0; i+1 < len(kv); i += 2 {
		e[kv[i]] = kv[i+1]
	}
	return e
}

func answers(list ...*model.Answer) *AnswerStore {
	s := NewAnswerStore(nil)
	for _, a := range list {
		s.Put(a)
	}
	return s
}

func yesNo(id string, yes bool) *model.Answer {
	return &model.Answer{QuestionID: id, QuestionType: model.QuestionTypeYesNo, Data: &model.AnswerData{Yes: boolPtr(yes)}}
}

func texts(id string, values ...string) *model.Answer {
	return &model.Answer{QuestionID: id, QuestionType: model.QuestionTypeMultipleText, Data: &model.AnswerData{Values: values}}
}

func single(id, key string) *model.Answer {
	return &model.Answer{QuestionID: id, QuestionType: model.QuestionTypeChoicesWithSingleAnswer, Data: &model.AnswerData{Value: key}}
}

func multiple(id string, keys ...string) *model.Answer {
	sel := map[string]bool{}
	for _, k := range keys {
		sel[k] = true
	}
	return &model.Answer{QuestionID: id, QuestionType: model.QuestionTypeChoicesWithMultipleAnswers, Data: &model.AnswerData{Selected: sel}}
}

func slider(id string, n int) *model.Answer {
	return &model.Answer{QuestionID: id, QuestionType: model.QuestionTypeSlider, Data: &model.AnswerData{Number: intPtr(n)}}
}
