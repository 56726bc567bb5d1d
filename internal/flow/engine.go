package flow

import (
	"errors"
	"strconv"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

// ErrNoCurrentQuestion is returned when advancing a finished survey.
var ErrNoCurrentQuestion = errors.New("survey has no current question")

// DefaultMaxBranchHops bounds how many non-displayed questions Next and
// Settle may pass through in one call.
const DefaultMaxBranchHops = 64

// State is the navigation part of a session: the current question and the
// stack of deferred continuations.
type State struct {
	Current model.CurrentQuestionData
	Stack   []model.NavigationFrame
}

// Done reports whether the survey has ended.
func (s State) Done() bool {
	return s.Current.QuestionID == ""
}

// Clone returns a copy sharing no maps or slices with s.
func (s State) Clone() State {
	return State{
		Current: model.CurrentQuestionData{
			QuestionID: s.Current.QuestionID,
			ExtraData:  s.Current.ExtraData.Clone(),
		},
		Stack: model.CloneFrames(s.Stack),
	}
}

// Transition is the result of advancing. Side effects are described, not
// performed: the caller schedules FollowupStream when it is set.
type Transition struct {
	State          State
	FollowupStream string
	// Steps counts the questions advanced past, including skipped branches.
	Steps int
}

// Done reports whether the transition ended the survey.
func (t Transition) Done() bool { return t.State.Done() }

// Engine computes the next question from the current state and answers.
// It is stateless and safe for concurrent use.
type Engine struct {
	graph    *Graph
	resolver *Resolver
	maxHops  int
}

// NewEngine returns an engine over graph. A non-positive maxHops uses
// DefaultMaxBranchHops.
func NewEngine(graph *Graph, resolver *Resolver, maxHops int) *Engine {
	if maxHops <= 0 {
		maxHops = DefaultMaxBranchHops
	}
	return &Engine{graph: graph, resolver: resolver, maxHops: maxHops}
}

// Graph returns the question graph the engine walks.
func (e *Engine) Graph() *Graph { return e.graph }

// Resolver returns the resolver used for placeholder question IDs.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Next advances past the current question, then past any Branch or
// BranchWithRelativeComparison questions reached, so the returned current
// question is either displayable or absent.
func (e *Engine) Next(state State, answers AnswerReader) (Transition, error) {
	t, err := e.Advance(state, answers)
	if err != nil {
		return Transition{}, err
	}
	settled, err := e.Settle(t.State, answers)
	if err != nil {
		return Transition{}, err
	}
	settled.Steps += t.Steps
	if settled.FollowupStream == "" {
		settled.FollowupStream = t.FollowupStream
	}
	return settled, nil
}

// Settle advances while the current question is not displayed. A state
// already on a displayed question is returned unchanged.
func (e *Engine) Settle(state State, answers AnswerReader) (Transition, error) {
	out := Transition{State: state.Clone()}
	for !out.State.Done() {
		q, ok := e.graph.Question(out.State.Current.QuestionID)
		if !ok {
			return Transition{}, apperror.NewContentDefectError("question %q does not exist", out.State.Current.QuestionID)
		}
		if q.Type.Displayed() {
			break
		}
		if out.Steps >= e.maxHops {
			return Transition{}, apperror.NewContentDefectError("more than %d branch questions in a row starting at %q, check for a cycle", e.maxHops, state.Current.QuestionID)
		}
		t, err := e.Advance(out.State, answers)
		if err != nil {
			return Transition{}, err
		}
		if t.FollowupStream != "" {
			out.FollowupStream = t.FollowupStream
		}
		out.State = t.State
		out.Steps++
	}
	return out, nil
}

// Advance applies one navigation step for the current question. The input
// state is never modified.
func (e *Engine) Advance(state State, answers AnswerReader) (Transition, error) {
	prevID := state.Current.QuestionID
	if prevID == "" {
		return Transition{}, ErrNoCurrentQuestion
	}
	prev, ok := e.graph.Question(prevID)
	if !ok {
		return Transition{}, apperror.NewContentDefectError("question %q does not exist", prevID)
	}
	prevExtra := state.Current.ExtraData
	prevAnswer := e.answerTo(e.resolver.Resolve(prevID, prevExtra, answers), answers)

	st := step{nextID: prev.Next, extra: prevExtra}

	switch prev.Type {
	case model.QuestionTypeYesNo:
		if prevAnswer == nil || prevAnswer.Data == nil || prevAnswer.Data.Yes == nil {
			break
		}
		yes := *prevAnswer.Data.Yes
		key := "no"
		if yes {
			key = "yes"
		}
		st.apply(prev.BranchStartID.Lookup(key))
		if yes && prev.AddFollowupStream != nil && prev.AddFollowupStream.Yes != "" {
			st.followup = prev.AddFollowupStream.Yes
		}

	case model.QuestionTypeMultipleText:
		n := prevAnswer.ItemCount()
		if n == 0 || prev.RepeatedItemStartID == "" {
			st.apply(prev.FallbackItemStartID)
			break
		}
		// Reversed so the first item ends up as the immediate next question.
		for i := n - 1; i >= 0; i-- {
			st.jumps = append(st.jumps, model.NavigationFrame{
				QuestionID: prev.RepeatedItemStartID,
				ExtraData: model.ExtraData{
					prev.VariableName: prevAnswer.Data.Values[i],
					prev.IndexName:    strconv.Itoa(i + 1),
				},
			})
		}

	case model.QuestionTypeBranch:
		target := prev.BranchStartID.Lookup("false")
		if e.branchConditionHolds(prev.Condition, prevExtra, answers) {
			target = prev.BranchStartID.Lookup("true")
		}
		st.apply(target)

	case model.QuestionTypeBranchWithRelativeComparison:
		entries := prev.BranchStartID.Entries()
		if len(entries) == 0 {
			break
		}
		// Absent and zero answers count as -1 and never win; ties keep the
		// earlier entry.
		target := entries[0].Target
		best := -1
		for _, entry := range entries {
			v := -1
			if a := e.answerTo(entry.Key, answers); a != nil && a.Data != nil && a.Data.Number != nil && *a.Data.Number != 0 {
				v = *a.Data.Number
			}
			if v > best {
				target = entry.Target
				best = v
			}
		}
		st.apply(target)

	case model.QuestionTypeChoicesWithSingleAnswer, model.QuestionTypeChoicesWithMultipleAnswers:
		if target, found := specialCase(prev, prevAnswer); found {
			st.apply(target)
		}
	}

	next := st.result(state.Stack)
	if id := next.Current.QuestionID; id != "" {
		if _, ok := e.graph.Question(id); !ok {
			return Transition{}, apperror.NewContentDefectError("question %q reached from %q does not exist", id, prevID)
		}
	}
	return Transition{State: next, FollowupStream: st.followup, Steps: 1}, nil
}

func (e *Engine) answerTo(questionID string, answers AnswerReader) *model.Answer {
	if answers == nil {
		return nil
	}
	a, _ := answers.Answer(questionID)
	return a
}

func (e *Engine) branchConditionHolds(cond *model.BranchCondition, extra model.ExtraData, answers AnswerReader) bool {
	if cond == nil {
		return false
	}
	a := e.answerTo(e.resolver.Resolve(cond.QuestionID, extra, answers), answers)
	if a == nil || a.Data == nil {
		return false
	}
	switch cond.QuestionType {
	case model.QuestionTypeMultipleText:
		n, ok := numericTarget(cond.Target)
		return ok && n == float64(len(a.Data.Values))
	case model.QuestionTypeChoicesWithSingleAnswer:
		s, ok := cond.Target.(string)
		return ok && s == a.Data.Value
	default:
		return false
	}
}

func numericTarget(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// specialCase finds the specialCasesStartId entry that applies to a.
func specialCase(q *model.Question, a *model.Answer) (model.Target, bool) {
	cases := q.SpecialCasesStartID
	if cases.Len() == 0 || a == nil {
		return model.Target{}, false
	}
	if (a.PreferNotToAnswer || a.NextWithoutOption) && cases.Has(model.PreferNotToAnswerKey) {
		return cases.Lookup(model.PreferNotToAnswerKey), true
	}
	if a.Data == nil {
		return model.Target{}, false
	}
	switch q.Type {
	case model.QuestionTypeChoicesWithSingleAnswer:
		if a.Data.Value != "" && cases.Has(a.Data.Value) {
			return cases.Lookup(a.Data.Value), true
		}
	case model.QuestionTypeChoicesWithMultipleAnswers:
		// Only the first selected choice is considered, mapped or not.
		for _, c := range q.Choices.Items {
			if a.Data.Selected[c.Key] {
				if cases.Has(c.Key) {
					return cases.Lookup(c.Key), true
				}
				break
			}
		}
	}
	return model.Target{}, false
}

// step accumulates the outcome of one Advance before the stack is updated.
type step struct {
	nextID   string // fall-through, "" terminates
	extra    model.ExtraData
	jumps    []model.NavigationFrame
	followup string
}

func (s *step) apply(t model.Target) {
	switch t.Kind {
	case model.TargetTerminate:
		s.nextID = ""
	case model.TargetJump:
		s.jumps = append(s.jumps, model.NavigationFrame{QuestionID: t.QuestionID, ExtraData: s.extra.Clone()})
	}
}

func (s *step) result(prevStack []model.NavigationFrame) State {
	stack := model.CloneFrames(prevStack)

	if len(s.jumps) == 0 {
		cur := model.CurrentQuestionData{QuestionID: s.nextID, ExtraData: s.extra.Clone()}
		if s.nextID == "" && len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cur = model.CurrentQuestionData{QuestionID: top.QuestionID, ExtraData: top.ExtraData}
		}
		return State{Current: cur, Stack: stack}
	}

	if s.nextID != "" {
		stack = append(stack, model.NavigationFrame{QuestionID: s.nextID, ExtraData: s.extra.Clone()})
	}
	immediate := s.jumps[len(s.jumps)-1]
	stack = append(stack, model.CloneFrames(s.jumps[:len(s.jumps)-1])...)
	return State{
		Current: model.CurrentQuestionData{QuestionID: immediate.QuestionID, ExtraData: immediate.ExtraData.Clone()},
		Stack:   stack,
	}
}
