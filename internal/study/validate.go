package study

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

var (
	idPattern = regexp.MustCompile(`^\w+$`)
	// Question IDs may embed variable placeholders, e.g. "close_[__IDX__]".
	questionIDPattern = regexp.MustCompile(`^(?:\w|\[__\w+__\])+$`)
	placeholderToken  = regexp.MustCompile(`\[__\w+__\]`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("wellping_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks the structure of the study file and that every stream,
// question and branch target it references exists.
func Validate(file *model.StudyFile) error {
	if err := validate.Struct(file); err != nil {
		return apperror.NewValidationError(fmt.Sprintf("study file is invalid: %v", err)).WithCause(err)
	}

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	info := file.StudyInfo
	for day := time.Sunday; day <= time.Saturday; day++ {
		streams, ok := info.StreamsOrder[day]
		if !ok {
			report("streamsOrder is missing %s", day)
			continue
		}
		if len(streams) != len(info.Frequency.HoursEveryday) {
			report("streamsOrder[%d] has %d streams but hoursEveryday has %d hours", day, len(streams), len(info.Frequency.HoursEveryday))
		}
		for _, s := range streams {
			if _, ok := file.Streams[s]; !ok {
				report("streamsOrder[%d] references unknown stream %q", day, s)
			}
		}
	}
	if _, ok := file.Streams[info.StreamInCaseOfError]; !ok {
		report("streamInCaseOfError references unknown stream %q", info.StreamInCaseOfError)
	}
	for _, s := range info.StreamsNotReplacedByFollowupStream {
		if _, ok := file.Streams[s]; !ok {
			report("streamsNotReplacedByFollowupStream references unknown stream %q", s)
		}
	}

	for _, name := range sortedKeys(file.Streams) {
		questions := file.Streams[name]
		start, ok := file.Meta.StartingQuestionIDs[name]
		if !ok {
			report("stream %q has no starting question", name)
		} else if _, ok := questions[start]; !ok {
			report("stream %q starts at unknown question %q", name, start)
		}
		for _, id := range sortedKeys(questions) {
			validateQuestion(name, id, questions[id], file, report)
		}
	}
	for _, name := range sortedKeys(file.Meta.StartingQuestionIDs) {
		if _, ok := file.Streams[name]; !ok {
			report("startingQuestionIds references unknown stream %q", name)
		}
	}

	if len(problems) > 0 {
		return apperror.NewValidationError("study file is invalid: " + strings.Join(problems, "; "))
	}
	return nil
}

func validateQuestion(stream, key string, q *model.Question, file *model.StudyFile, report func(string, ...any)) {
	where := fmt.Sprintf("%s/%s", stream, key)
	if q == nil {
		report("%s: question is null", where)
		return
	}
	questions := file.Streams[stream]

	if q.ID != key {
		report("%s: key does not match question id %q", where, q.ID)
	}
	if !questionIDPattern.MatchString(q.ID) {
		report("%s: question id can only include letters, numbers, \"_\" and placeholders", where)
	}

	exists := func(field, id string) {
		if id == "" {
			return
		}
		if _, ok := questions[id]; !ok {
			report("%s: %s references unknown question %q", where, field, id)
		}
	}
	targetExists := func(field string, t model.Target) {
		if t.Kind == model.TargetJump {
			exists(field, t.QuestionID)
		}
	}
	mapExists := func(field string, m model.TargetMap, allowedKeys ...string) {
		for _, e := range m.Entries() {
			if len(allowedKeys) > 0 && !slices.Contains(allowedKeys, e.Key) {
				report("%s: %s has unexpected key %q", where, field, e.Key)
			}
			targetExists(field+"."+e.Key, e.Target)
		}
	}

	exists("next", q.Next)

	switch q.Type {
	case model.QuestionTypeSlider:
		if len(q.Slider) != 2 {
			report("%s: slider needs exactly [left, right] labels", where)
		}
		if q.DefaultValue != nil && (*q.DefaultValue < 0 || *q.DefaultValue > 100) {
			report("%s: defaultValue must be between 0 and 100", where)
		}
		exists("defaultValueFromQuestionId", q.DefaultValueFromQuestionID)

	case model.QuestionTypeChoicesWithSingleAnswer, model.QuestionTypeChoicesWithMultipleAnswers:
		if q.Choices.Names || len(q.Choices.Items) == 0 {
			report("%s: choices must be a non-empty list", where)
		}
		keys := []string{model.PreferNotToAnswerKey}
		for _, c := range q.Choices.Items {
			keys = append(keys, c.Key)
		}
		mapExists("specialCasesStartId", q.SpecialCasesStartID, keys...)

	case model.QuestionTypeYesNo:
		mapExists("branchStartId", q.BranchStartID, "yes", "no")
		if q.AddFollowupStream != nil && q.AddFollowupStream.Yes != "" {
			if _, ok := file.Streams[q.AddFollowupStream.Yes]; !ok {
				report("%s: addFollowupStream.yes references unknown stream %q", where, q.AddFollowupStream.Yes)
			}
		}

	case model.QuestionTypeMultipleText:
		if q.IndexName == "" || q.VariableName == "" {
			report("%s: indexName and variableName are required", where)
		}
		if q.Max <= 0 {
			report("%s: max must be positive", where)
		}
		exists("maxMinus", q.MaxMinus)
		exists("repeatedItemStartId", q.RepeatedItemStartID)
		targetExists("fallbackItemStartId", q.FallbackItemStartID)

	case model.QuestionTypeBranch:
		c := q.Condition
		if c == nil {
			report("%s: condition is required", where)
			break
		}
		switch c.QuestionType {
		case model.QuestionTypeMultipleText:
			if _, ok := c.Target.(float64); !ok {
				report("%s: condition.target must be a number for MultipleText", where)
			}
		case model.QuestionTypeChoicesWithSingleAnswer:
			if _, ok := c.Target.(string); !ok {
				report("%s: condition.target must be a string for ChoicesWithSingleAnswer", where)
			}
		default:
			report("%s: condition.questionType %q is not supported", where, c.QuestionType)
		}
		if c.Compare != "equal" {
			report("%s: condition.compare must be \"equal\"", where)
		}
		if !placeholderToken.MatchString(c.QuestionID) {
			exists("condition.questionId", c.QuestionID)
		}
		mapExists("branchStartId", q.BranchStartID, "true", "false")

	case model.QuestionTypeBranchWithRelativeComparison:
		if q.BranchStartID.Len() == 0 {
			report("%s: branchStartId must list at least one question", where)
		}
		for _, e := range q.BranchStartID.Entries() {
			exists("branchStartId key", e.Key)
		}
		mapExists("branchStartId", q.BranchStartID)

	case model.QuestionTypeHowLongAgo:

	default:
		report("%s: unknown question type %q", where, q.Type)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
