package model

import "time"

// HowLongAgo is the payload of a HowLongAgo answer.
type HowLongAgo struct {
	Number int    `json:"number" bson:"number"`
	Unit   string `json:"unit" bson:"unit"` // "hours", "days", "weeks", "months"
}

// AnswerData holds the type-specific payload of an answer. Only the field
// matching the question type is set.
type AnswerData struct {
	Value      string          `json:"value,omitempty" bson:"value,omitempty"`           // ChoicesWithSingleAnswer: chosen key
	Selected   map[string]bool `json:"selected,omitempty" bson:"selected,omitempty"`     // ChoicesWithMultipleAnswers: key -> selected
	Yes        *bool           `json:"yes,omitempty" bson:"yes,omitempty"`               // YesNo
	Values     []string        `json:"values,omitempty" bson:"values,omitempty"`         // MultipleText: entered items
	Number     *int            `json:"number,omitempty" bson:"number,omitempty"`         // Slider
	HowLongAgo *HowLongAgo     `json:"howLongAgo,omitempty" bson:"howLongAgo,omitempty"` // HowLongAgo
}

// Answer is the latest recorded answer to one question in one ping.
type Answer struct {
	PingID            string       `json:"pingId" bson:"pingId"`
	Username          string       `json:"-" bson:"username"`
	QuestionID        string       `json:"questionId" bson:"questionId"` // placeholders already resolved
	QuestionType      QuestionType `json:"questionType" bson:"questionType"`
	PreferNotToAnswer bool         `json:"preferNotToAnswer" bson:"preferNotToAnswer"`
	NextWithoutOption bool         `json:"nextWithoutOption" bson:"nextWithoutOption"`
	Data              *AnswerData  `json:"data" bson:"data"`
	LastUpdateDate    time.Time    `json:"lastUpdateDate" bson:"lastUpdateDate"`
}

// ItemCount returns the number of MultipleText items entered.
func (a *Answer) ItemCount() int {
	if a == nil || a.Data == nil {
		return 0
	}
	return len(a.Data.Values)
}

// Clone returns a copy that shares nothing mutable with a.
func (a *Answer) Clone() *Answer {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		d := *a.Data
		if a.Data.Selected != nil {
			d.Selected = make(map[string]bool, len(a.Data.Selected))
			for k, v := range a.Data.Selected {
				d.Selected[k] = v
			}
		}
		if a.Data.Values != nil {
			d.Values = append([]string(nil), a.Data.Values...)
		}
		if a.Data.Yes != nil {
			y := *a.Data.Yes
			d.Yes = &y
		}
		if a.Data.Number != nil {
			n := *a.Data.Number
			d.Number = &n
		}
		if a.Data.HowLongAgo != nil {
			h := *a.Data.HowLongAgo
			d.HowLongAgo = &h
		}
		c.Data = &d
	}
	return &c
}

// AnswersList maps resolved question IDs to their current answer.
type AnswersList map[string]*Answer

// Clone deep-copies the list.
func (l AnswersList) Clone() AnswersList {
	out := make(AnswersList, len(l))
	for k, a := range l {
		out[k] = a.Clone()
	}
	return out
}
