package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetThreeStates(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "mt",
		"type": "MultipleText",
		"question": "Who?",
		"next": null,
		"fallbackItemStartId": null
	}`), &q))
	assert.Equal(t, Terminate(), q.FallbackItemStartID)
	assert.Equal(t, "", q.Next)

	q = Question{}
	require.NoError(t, json.Unmarshal([]byte(`{"id": "mt", "type": "MultipleText", "question": "", "next": "n"}`), &q))
	assert.Equal(t, Unset(), q.FallbackItemStartID)
	assert.False(t, q.FallbackItemStartID.IsSet())

	q = Question{}
	require.NoError(t, json.Unmarshal([]byte(`{"id": "mt", "type": "MultipleText", "question": "", "next": "n", "fallbackItemStartId": "none"}`), &q))
	assert.Equal(t, JumpTo("none"), q.FallbackItemStartID)

	err := json.Unmarshal([]byte(`{"fallbackItemStartId": ""}`), &q)
	assert.Error(t, err)
}

func TestTargetMapKeepsDeclarationOrder(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "bw",
		"type": "BranchWithRelativeComparison",
		"question": "",
		"next": null,
		"branchStartId": {"zeta": "z", "alpha": null, "mid": "m"}
	}`), &q))

	entries := q.BranchStartID.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{entries[0].Key, entries[1].Key, entries[2].Key})
	assert.Equal(t, Terminate(), q.BranchStartID.Lookup("alpha"))
	assert.True(t, q.BranchStartID.Has("alpha"))
	assert.False(t, q.BranchStartID.Has("beta"))
	assert.Equal(t, Unset(), q.BranchStartID.Lookup("beta"))

	out, err := json.Marshal(q.BranchStartID)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":null,"mid":"m"}`, string(out))
}

func TestQuestionEncodingOmitsUnsetFields(t *testing.T) {
	q := Question{ID: "s", Type: QuestionTypeSlider, Prompt: "How?", Next: "t", Slider: []string{"low", "high"}}
	out, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s","type":"Slider","question":"How?","next":"t","slider":["low","high"]}`, string(out))
}

func TestQuestionEncodesEndAsNull(t *testing.T) {
	q := &Question{ID: "last", Type: QuestionTypeYesNo, Prompt: "Done?"}
	out, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"last","type":"YesNo","question":"Done?","next":null}`, string(out))

	var back Question
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, *q, back)
}

func TestChoiceListNames(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"id": "mt", "type": "MultipleText", "question": "", "next": null, "choices": "NAMES"}`), &q))
	assert.True(t, q.Choices.Names)

	require.NoError(t, json.Unmarshal([]byte(`{"choices": [{"key": "a", "value": "Apple"}]}`), &q))
	assert.False(t, q.Choices.Names)
	assert.Equal(t, "Apple", q.ChoiceLabel("a"))
	assert.Equal(t, "b", q.ChoiceLabel("b"))

	assert.Error(t, json.Unmarshal([]byte(`{"choices": "FRUITS"}`), &q))
}

func TestDisplayedTypes(t *testing.T) {
	assert.True(t, QuestionTypeYesNo.Displayed())
	assert.False(t, QuestionTypeBranch.Displayed())
	assert.False(t, QuestionTypeBranchWithRelativeComparison.Displayed())
}
