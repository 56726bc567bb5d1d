package flow

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

func targets(kv ...any) model.TargetMap {
	var entries []model.TargetEntry
	for i := 0; i+1 < len(kv); i += 2 {
		var t model.Target
		switch v := kv[i+1].(type) {
		case nil:
			t = model.Terminate()
		case string:
			t = model.JumpTo(v)
		}
		entries = append(entries, model.TargetEntry{Key: kv[i].(string), Target: t})
	}
	return model.NewTargetMap(entries...)
}

func assertState(t *testing.T, want, got State) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestNextTerminatesOnNullNextWithEmptyStack(t *testing.T) {
	e := newTestEngine(linear("only", ""))

	tr, err := e.Next(at("only"), answers())
	require.NoError(t, err)
	assert.True(t, tr.Done())
	assert.Empty(t, tr.State.Stack)
	assert.Equal(t, 1, tr.Steps)

	_, err = e.Next(tr.State, answers())
	assert.ErrorIs(t, err, ErrNoCurrentQuestion)
}

func TestNextPopsStackWhenNextIsNull(t *testing.T) {
	e := newTestEngine(linear("q", ""), linear("x", ""))
	state := State{
		Current: model.CurrentQuestionData{QuestionID: "q"},
		Stack:   []model.NavigationFrame{frame("x", "K", "v")},
	}

	tr, err := e.Next(state, answers())
	require.NoError(t, err)
	assertState(t, State{Current: model.CurrentQuestionData{QuestionID: "x", ExtraData: extra("K", "v")}}, tr.State)
}

func TestYesNoBranching(t *testing.T) {
	q := &model.Question{
		ID:            "yn",
		Type:          model.QuestionTypeYesNo,
		Next:          "after",
		BranchStartID: targets("yes", "y1"),
	}
	e := newTestEngine(q, linear("y1", ""), linear("after", ""))

	tests := []struct {
		name   string
		answer *model.Answer
		want   State
	}{
		{
			name:   "yes jumps and stacks next",
			answer: yesNo("yn", true),
			want:   State{Current: model.CurrentQuestionData{QuestionID: "y1"}, Stack: []model.NavigationFrame{frame("after")}},
		},
		{
			name:   "no without branch falls through",
			answer: yesNo("yn", false),
			want:   at("after"),
		},
		{
			name:   "unanswered falls through",
			answer: &model.Answer{QuestionID: "yn", NextWithoutOption: true},
			want:   at("after"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := e.Next(at("yn"), answers(tt.answer))
			require.NoError(t, err)
			assertState(t, tt.want, tr.State)
			assert.Empty(t, tr.FollowupStream)
		})
	}
}

func TestYesNoNullBranchTerminates(t *testing.T) {
	q := &model.Question{ID: "yn", Type: model.QuestionTypeYesNo, Next: "after", BranchStartID: targets("no", nil)}
	e := newTestEngine(q, linear("after", ""))

	tr, err := e.Next(at("yn"), answers(yesNo("yn", false)))
	require.NoError(t, err)
	assert.True(t, tr.Done())
}

func TestYesNoJumpWithNullNextKeepsStack(t *testing.T) {
	q := &model.Question{ID: "yn", Type: model.QuestionTypeYesNo, Next: "", BranchStartID: targets("yes", "j")}
	e := newTestEngine(q, linear("j", ""), linear("outer", ""))
	state := State{Current: model.CurrentQuestionData{QuestionID: "yn"}, Stack: []model.NavigationFrame{frame("outer")}}

	tr, err := e.Next(state, answers(yesNo("yn", true)))
	require.NoError(t, err)
	assertState(t, State{Current: model.CurrentQuestionData{QuestionID: "j"}, Stack: []model.NavigationFrame{frame("outer")}}, tr.State)
}

func TestYesNoFollowupStreamOnlyOnYes(t *testing.T) {
	q := &model.Question{
		ID:                "yn",
		Type:              model.QuestionTypeYesNo,
		Next:              "",
		AddFollowupStream: &model.FollowupStream{Yes: "followup"},
	}
	e := newTestEngine(q)

	tr, err := e.Next(at("yn"), answers(yesNo("yn", true)))
	require.NoError(t, err)
	assert.Equal(t, "followup", tr.FollowupStream)

	tr, err = e.Next(at("yn"), answers(yesNo("yn", false)))
	require.NoError(t, err)
	assert.Empty(t, tr.FollowupStream)
}

func TestMultipleTextRepeatsPerItemThenReturns(t *testing.T) {
	mt := &model.Question{
		ID:                  "names",
		Type:                model.QuestionTypeMultipleText,
		Next:                "after",
		VariableName:        "NAME",
		IndexName:           "IDX",
		Max:                 3,
		RepeatedItemStartID: "about",
	}
	about := &model.Question{ID: "about", Type: model.QuestionTypeSlider, Prompt: "How close is [__NAME__] (#[__IDX__])?", Next: ""}
	e := newTestEngine(mt, about, linear("after", ""))
	ans := answers(texts("names", "Ada", "Bob"))

	tr, err := e.Next(at("names"), ans)
	require.NoError(t, err)
	assertState(t, State{
		Current: model.CurrentQuestionData{QuestionID: "about", ExtraData: extra("NAME", "Ada", "IDX", "1")},
		Stack:   []model.NavigationFrame{frame("after"), frame("about", "NAME", "Bob", "IDX", "2")},
	}, tr.State)
	assert.Equal(t, "How close is Ada (#1)?", e.Resolver().Resolve(about.Prompt, tr.State.Current.ExtraData, ans))

	var visited []string
	state := tr.State
	for !state.Done() {
		visited = append(visited, fmt.Sprintf("%s %v", state.Current.QuestionID, map[string]string(state.Current.ExtraData)))
		tr, err = e.Next(state, ans)
		require.NoError(t, err)
		state = tr.State
	}
	assert.Equal(t, []string{
		"about map[IDX:1 NAME:Ada]",
		"about map[IDX:2 NAME:Bob]",
		"after map[]",
	}, visited)
}

func TestMultipleTextFallback(t *testing.T) {
	base := func(fallback model.Target) *model.Question {
		return &model.Question{
			ID:                  "names",
			Type:                model.QuestionTypeMultipleText,
			Next:                "after",
			VariableName:        "NAME",
			IndexName:           "IDX",
			RepeatedItemStartID: "about",
			FallbackItemStartID: fallback,
		}
	}

	t.Run("null fallback terminates", func(t *testing.T) {
		e := newTestEngine(base(model.Terminate()), linear("about", ""), linear("after", ""))
		tr, err := e.Next(at("names"), answers(texts("names")))
		require.NoError(t, err)
		assert.True(t, tr.Done())
	})

	t.Run("fallback jump", func(t *testing.T) {
		e := newTestEngine(base(model.JumpTo("none")), linear("none", ""), linear("about", ""), linear("after", ""))
		tr, err := e.Next(at("names"), answers(texts("names")))
		require.NoError(t, err)
		assertState(t, State{Current: model.CurrentQuestionData{QuestionID: "none"}, Stack: []model.NavigationFrame{frame("after")}}, tr.State)
	})

	t.Run("unset fallback uses next", func(t *testing.T) {
		e := newTestEngine(base(model.Unset()), linear("about", ""), linear("after", ""))
		tr, err := e.Next(at("names"), answers())
		require.NoError(t, err)
		assertState(t, at("after"), tr.State)
	})
}

func TestBranchOnSingleChoiceNeverDisplaysBranch(t *testing.T) {
	fav := &model.Question{
		ID:   "fav",
		Type: model.QuestionTypeChoicesWithSingleAnswer,
		Next: "br",
		Choices: model.ChoiceList{Items: []model.Choice{
			{Key: "red", Value: "Red"},
			{Key: "blue", Value: "Blue"},
		}},
	}
	br := &model.Question{
		ID:   "br",
		Type: model.QuestionTypeBranch,
		Next: "end",
		Condition: &model.BranchCondition{
			QuestionID:   "fav",
			QuestionType: model.QuestionTypeChoicesWithSingleAnswer,
			Compare:      "equal",
			Target:       "red",
		},
		BranchStartID: targets("true", "isRed", "false", "notRed"),
	}
	e := newTestEngine(fav, br, linear("isRed", ""), linear("notRed", ""), linear("end", ""))

	tr, err := e.Next(at("fav"), answers(single("fav", "red")))
	require.NoError(t, err)
	assertState(t, State{Current: model.CurrentQuestionData{QuestionID: "isRed"}, Stack: []model.NavigationFrame{frame("end")}}, tr.State)
	assert.Equal(t, 2, tr.Steps)

	tr, err = e.Next(at("fav"), answers(single("fav", "blue")))
	require.NoError(t, err)
	assert.Equal(t, "notRed", tr.State.Current.QuestionID)
}

func TestBranchOnItemCountWithPlaceholderID(t *testing.T) {
	var br model.Question
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "br",
		"type": "Branch",
		"question": "",
		"next": "end",
		"condition": {"questionId": "kids_[__IDX__]", "questionType": "MultipleText", "compare": "equal", "target": 0},
		"branchStartId": {"true": "noKids"}
	}`), &br))
	e := newTestEngine(&br, linear("noKids", ""), linear("end", ""))

	state := State{Current: model.CurrentQuestionData{QuestionID: "br", ExtraData: extra("IDX", "2")}}

	tr, err := e.Settle(state, answers(texts("kids_2")))
	require.NoError(t, err)
	assert.Equal(t, "noKids", tr.State.Current.QuestionID)
	assert.Equal(t, extra("IDX", "2"), tr.State.Current.ExtraData)

	// false is not declared, so the branch falls through to next.
	tr, err = e.Settle(state, answers(texts("kids_2", "Cy")))
	require.NoError(t, err)
	assertState(t, State{Current: model.CurrentQuestionData{QuestionID: "end", ExtraData: extra("IDX", "2")}}, tr.State)
}

func TestBranchWithRelativeComparison(t *testing.T) {
	bw := &model.Question{
		ID:            "bw",
		Type:          model.QuestionTypeBranchWithRelativeComparison,
		Next:          "end",
		BranchStartID: targets("s1", "a", "s2", "b", "s3", "c"),
	}
	e := newTestEngine(bw, linear("a", ""), linear("b", ""), linear("c", ""), linear("end", ""))

	tests := []struct {
		name    string
		answers *AnswerStore
		want    string
	}{
		{"maximum wins", answers(slider("s1", 30), slider("s2", 70), slider("s3", 50)), "b"},
		{"tie keeps declaration order", answers(slider("s1", 30), slider("s2", 70), slider("s3", 70)), "b"},
		{"no answers picks first entry", answers(), "a"},
		{"zero never wins", answers(slider("s1", 0), slider("s3", 5)), "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := e.Advance(at("bw"), tt.answers)
			require.NoError(t, err)
			assertState(t, State{Current: model.CurrentQuestionData{QuestionID: tt.want}, Stack: []model.NavigationFrame{frame("end")}}, tr.State)
		})
	}
}

func TestChoicesSpecialCases(t *testing.T) {
	choices := model.ChoiceList{Items: []model.Choice{{Key: "a", Value: "A"}, {Key: "b", Value: "B"}, {Key: "c", Value: "C"}}}
	csa := &model.Question{
		ID:                  "csa",
		Type:                model.QuestionTypeChoicesWithSingleAnswer,
		Next:                "after",
		Choices:             choices,
		SpecialCasesStartID: targets("a", "ja", "c", nil, model.PreferNotToAnswerKey, "pna"),
	}
	cma := &model.Question{
		ID:                  "cma",
		Type:                model.QuestionTypeChoicesWithMultipleAnswers,
		Next:                "after",
		Choices:             choices,
		SpecialCasesStartID: targets("b", "jb", "c", "jc"),
	}
	e := newTestEngine(csa, cma, linear("ja", ""), linear("jb", ""), linear("jc", ""), linear("pna", ""), linear("after", ""))

	tests := []struct {
		name   string
		start  string
		answer *model.Answer
		want   State
	}{
		{
			name:   "single answer mapped",
			start:  "csa",
			answer: single("csa", "a"),
			want:   State{Current: model.CurrentQuestionData{QuestionID: "ja"}, Stack: []model.NavigationFrame{frame("after")}},
		},
		{
			name:   "single answer unmapped",
			start:  "csa",
			answer: single("csa", "b"),
			want:   at("after"),
		},
		{
			name:   "single answer mapped to null terminates",
			start:  "csa",
			answer: single("csa", "c"),
			want:   State{},
		},
		{
			name:   "prefer not to answer takes precedence",
			start:  "csa",
			answer: &model.Answer{QuestionID: "csa", PreferNotToAnswer: true, Data: &model.AnswerData{Value: "a"}},
			want:   State{Current: model.CurrentQuestionData{QuestionID: "pna"}, Stack: []model.NavigationFrame{frame("after")}},
		},
		{
			name:   "next without option uses pna",
			start:  "csa",
			answer: &model.Answer{QuestionID: "csa", NextWithoutOption: true},
			want:   State{Current: model.CurrentQuestionData{QuestionID: "pna"}, Stack: []model.NavigationFrame{frame("after")}},
		},
		{
			name:   "multiple answer first selected mapped",
			start:  "cma",
			answer: multiple("cma", "c", "b"),
			want:   State{Current: model.CurrentQuestionData{QuestionID: "jb"}, Stack: []model.NavigationFrame{frame("after")}},
		},
		{
			name:   "multiple answer stops at first selected",
			start:  "cma",
			answer: multiple("cma", "a", "c"),
			want:   at("after"),
		},
		{
			name:   "multiple answer without pna case falls through",
			start:  "cma",
			answer: &model.Answer{QuestionID: "cma", PreferNotToAnswer: true},
			want:   at("after"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := e.Next(at(tt.start), answers(tt.answer))
			require.NoError(t, err)
			assertState(t, tt.want, tr.State)
		})
	}
}

func TestLinearChainOfFifty(t *testing.T) {
	var qs []*model.Question
	for i := 1; i <= 50; i++ {
		next := fmt.Sprintf("q%d", i+1)
		if i == 50 {
			next = ""
		}
		qs = append(qs, linear(fmt.Sprintf("q%d", i), next))
	}
	e := newTestEngine(qs...)

	state := at("q1")
	for i := 2; i <= 50; i++ {
		tr, err := e.Next(state, answers())
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("q%d", i), tr.State.Current.QuestionID)
		state = tr.State
	}
	tr, err := e.Next(state, answers())
	require.NoError(t, err)
	assert.True(t, tr.Done())
}

func TestContentDefects(t *testing.T) {
	e := newTestEngine(linear("q", "ghost"))

	_, err := e.Next(at("q"), answers())
	require.Error(t, err)
	assert.True(t, apperror.IsContentDefect(err))

	_, err = e.Next(at("missing"), answers())
	assert.True(t, apperror.IsContentDefect(err))
}

func TestBranchCycleIsReported(t *testing.T) {
	br1 := &model.Question{ID: "br1", Type: model.QuestionTypeBranch, BranchStartID: targets("false", "br2")}
	br2 := &model.Question{ID: "br2", Type: model.QuestionTypeBranch, BranchStartID: targets("false", "br1")}
	e := newTestEngine(br1, br2)

	_, err := e.Settle(at("br1"), answers())
	require.Error(t, err)
	assert.True(t, apperror.IsContentDefect(err))
}

func TestSettleKeepsDisplayedQuestion(t *testing.T) {
	e := newTestEngine(linear("q", ""))
	tr, err := e.Settle(at("q"), answers())
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Steps)
	assertState(t, at("q"), tr.State)
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	mt := &model.Question{
		ID:                  "names",
		Type:                model.QuestionTypeMultipleText,
		Next:                "",
		VariableName:        "NAME",
		IndexName:           "IDX",
		RepeatedItemStartID: "about",
	}
	e := newTestEngine(mt, linear("about", ""), linear("outer", ""))
	state := State{
		Current: model.CurrentQuestionData{QuestionID: "names", ExtraData: extra("K", "v")},
		Stack:   []model.NavigationFrame{frame("outer", "K", "v")},
	}
	before := state.Clone()

	tr, err := e.Advance(state, answers(texts("names", "Ada", "Bob")))
	require.NoError(t, err)
	assertState(t, before, state)

	tr.State.Stack[0].ExtraData["K"] = "changed"
	assert.Equal(t, "v", state.Stack[0].ExtraData["K"])
}
