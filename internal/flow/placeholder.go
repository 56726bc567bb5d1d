package flow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"wellping/internal/model"
)

// ResolverConfig controls how the reserved variable is presented.
type ResolverConfig struct {
	// ReservedKey is rendered as ReservedPrefix + decapitalized value.
	ReservedKey    string
	ReservedPrefix string
	// PreserveCaseFor lists values of ReservedKey that keep their case.
	PreserveCaseFor []string
}

// DefaultResolverConfig renders TARGET_CATEGORY as "your <category>".
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ReservedKey:     "TARGET_CATEGORY",
		ReservedPrefix:  "your ",
		PreserveCaseFor: []string{"PHE"},
	}
}

var prevAnswerPattern = regexp.MustCompile(`\[__PREV_ANSWER_(\w+?)__\]`)

// Resolver substitutes placeholders in question prompts and IDs.
//
// Two kinds are supported: [__NAME__] is replaced by the variable NAME bound
// in the active frame's extra data, and [__PREV_ANSWER_QID__] by the answer
// previously given to question QID. Only ChoicesWithSingleAnswer answers
// can be back-referenced; a reference to any other type is left as is.
type Resolver struct {
	graph    *Graph
	cfg      ResolverConfig
	preserve map[string]struct{}
}

func NewResolver(graph *Graph, cfg ResolverConfig) *Resolver {
	preserve := make(map[string]struct{}, len(cfg.PreserveCaseFor))
	for _, v := range cfg.PreserveCaseFor {
		preserve[v] = struct{}{}
	}
	return &Resolver{graph: graph, cfg: cfg, preserve: preserve}
}

// VariableToken returns the placeholder token for a bound variable.
func VariableToken(name string) string {
	return "[__" + name + "__]"
}

// Resolve returns text with every placeholder substituted. It never
// modifies extra or answers.
func (r *Resolver) Resolve(text string, extra model.ExtraData, answers AnswerReader) string {
	if !strings.Contains(text, "[__") {
		return text
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := text
	for _, k := range keys {
		out = strings.ReplaceAll(out, VariableToken(k), r.presentVariable(k, extra[k]))
	}

	return prevAnswerPattern.ReplaceAllStringFunc(out, func(token string) string {
		qid := prevAnswerPattern.FindStringSubmatch(token)[1]
		if s, ok := r.previousAnswer(qid, answers); ok {
			return s
		}
		return token
	})
}

func (r *Resolver) presentVariable(key, value string) string {
	if key != r.cfg.ReservedKey {
		return value
	}
	if _, ok := r.preserve[value]; !ok {
		value = Decapitalize(value)
	}
	return r.cfg.ReservedPrefix + value
}

// previousAnswer renders the answer to qid. ok is false when the question
// type cannot be back-referenced.
func (r *Resolver) previousAnswer(qid string, answers AnswerReader) (string, bool) {
	q, found := r.graph.Question(qid)
	if !found {
		return ProblemText(fmt.Sprintf("question %s referenced by a placeholder does not exist", qid)), true
	}

	switch q.Type {
	case model.QuestionTypeChoicesWithSingleAnswer:
		var a *model.Answer
		if answers != nil {
			a, _ = answers.Answer(qid)
		}
		if a == nil {
			return ProblemText(fmt.Sprintf("csaAnswer.data (from %s) == null", qid)), true
		}
		if a.Data == nil || a.Data.Value == "" {
			return ProblemText(fmt.Sprintf("csaAnswerChoiceValue (from %s) == null", qid)), true
		}
		return Decapitalize(q.ChoiceLabel(a.Data.Value)), true
	default:
		return "", false
	}
}

// ProblemText is the participant-visible text shown in place of content
// that could not be produced.
func ProblemText(detail string) string {
	return fmt.Sprintf("[Non-critical problem: %s. Please let the research staff know about this.]", detail)
}

// Decapitalize lowercases the first character of s.
func Decapitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
