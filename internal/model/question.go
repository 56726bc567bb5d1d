package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QuestionType defines the type of question
type QuestionType string

const (
	QuestionTypeSlider                       QuestionType = "Slider"
	QuestionTypeChoicesWithSingleAnswer      QuestionType = "ChoicesWithSingleAnswer"
	QuestionTypeChoicesWithMultipleAnswers   QuestionType = "ChoicesWithMultipleAnswers"
	QuestionTypeYesNo                        QuestionType = "YesNo"
	QuestionTypeMultipleText                 QuestionType = "MultipleText"
	QuestionTypeHowLongAgo                   QuestionType = "HowLongAgo"
	QuestionTypeBranch                       QuestionType = "Branch"
	QuestionTypeBranchWithRelativeComparison QuestionType = "BranchWithRelativeComparison"
)

// Displayed reports whether questions of this type are shown to the
// participant. Branch types are evaluated and skipped immediately.
func (t QuestionType) Displayed() bool {
	return t != QuestionTypeBranch && t != QuestionTypeBranchWithRelativeComparison
}

// PreferNotToAnswerKey is the specialCasesStartId key used when the
// participant prefers not to answer or presses next without choosing.
const PreferNotToAnswerKey = "_pna"

// Question is one node of a stream's question graph.
type Question struct {
	ID     string       `json:"id"`
	Type   QuestionType `json:"type"`
	Prompt string       `json:"question"`
	Next   string       `json:"next"` // "" (JSON null) ends the sequence

	// Slider only
	Slider                     []string `json:"slider,omitempty"` // [left, right]
	DefaultValue               *int     `json:"defaultValue,omitempty"`
	DefaultValueFromQuestionID string   `json:"defaultValueFromQuestionId,omitempty"`

	// ChoicesWithSingleAnswer / ChoicesWithMultipleAnswers; MultipleText
	// uses Choices for its suggestion list.
	Choices                     ChoiceList `json:"choices,omitzero"`
	SpecialCasesStartID         TargetMap  `json:"specialCasesStartId,omitzero"`
	RandomizeChoicesOrder       bool       `json:"randomizeChoicesOrder,omitempty"`
	RandomizeExceptForChoiceIDs []string   `json:"randomizeExceptForChoiceIds,omitempty"`

	// YesNo ("yes"/"no"), Branch ("true"/"false") and
	// BranchWithRelativeComparison (question ID keys).
	BranchStartID TargetMap `json:"branchStartId,omitzero"`

	// YesNo only
	AddFollowupStream *FollowupStream `json:"addFollowupStream,omitempty"`

	// MultipleText only
	IndexName           string `json:"indexName,omitempty"`
	VariableName        string `json:"variableName,omitempty"`
	EachID              string `json:"eachId,omitempty"`
	Placeholder         string `json:"placeholder,omitempty"`
	ForceChoice         bool   `json:"forceChoice,omitempty"`
	Max                 int    `json:"max,omitempty"`
	MaxMinus            string `json:"maxMinus,omitempty"`
	RepeatedItemStartID string `json:"repeatedItemStartId,omitempty"`
	FallbackItemStartID Target `json:"fallbackItemStartId,omitzero"`

	// Branch only
	Condition *BranchCondition `json:"condition,omitempty"`
}

// MarshalJSON writes an empty Next as null, as in the study file.
func (q Question) MarshalJSON() ([]byte, error) {
	type plain Question
	out := struct {
		plain
		Next *string `json:"next"`
	}{plain: plain(q)}
	if q.Next != "" {
		out.Next = &q.Next
	}
	return json.Marshal(out)
}

// Choice is one selectable option.
type Choice struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChoiceLabel returns the display value of the choice with the given key,
// or the key itself when no such choice is declared.
func (q *Question) ChoiceLabel(key string) string {
	for _, c := range q.Choices.Items {
		if c.Key == key {
			return c.Value
		}
	}
	return key
}

// FollowupStream schedules a future stream when a YesNo question is
// answered. Only "yes" is supported.
type FollowupStream struct {
	Yes string `json:"yes,omitempty"`
}

// BranchCondition is the test a Branch question evaluates.
type BranchCondition struct {
	QuestionID   string       `json:"questionId"` // may contain placeholders
	QuestionType QuestionType `json:"questionType"`
	Compare      string       `json:"compare"` // only "equal"
	Target       any          `json:"target"`  // number (MultipleText) or string (ChoicesWithSingleAnswer)
}

// NamesChoices is the MultipleText shorthand for the bundled names list.
const NamesChoices = "NAMES"

// ChoiceList is either an explicit list of choices or, for MultipleText,
// the "NAMES" shorthand.
type ChoiceList struct {
	Names bool
	Items []Choice
}

func (c ChoiceList) IsZero() bool { return !c.Names && len(c.Items) == 0 }

func (c ChoiceList) MarshalJSON() ([]byte, error) {
	if c.Names {
		return json.Marshal(NamesChoices)
	}
	if c.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Items)
}

func (c *ChoiceList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ChoiceList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != NamesChoices {
			return fmt.Errorf("choices must be a list or %q, got %q", NamesChoices, s)
		}
		*c = ChoiceList{Names: true}
		return nil
	}
	var items []Choice
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*c = ChoiceList{Items: items}
	return nil
}

// QuestionsList maps question IDs to questions for one stream.
type QuestionsList map[string]*Question
