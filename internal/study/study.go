// Package study loads and validates study files and exposes one question
// graph per stream.
package study

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"wellping/internal/apperror"
	"wellping/internal/flow"
	"wellping/internal/model"
)

// Study is a validated study file. It is immutable once loaded.
type Study struct {
	file   model.StudyFile
	graphs map[string]*flow.Graph
	raw    []byte
}

// LoadFile reads and validates the study file at path.
func LoadFile(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON study file. Unknown fields are
// rejected so authoring typos do not silently disable a branch.
func Parse(data []byte) (*Study, error) {
	var file model.StudyFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, apperror.NewValidationError(fmt.Sprintf("study file is not valid JSON: %v", err)).WithCause(err)
	}
	if err := Validate(&file); err != nil {
		return nil, err
	}

	s := &Study{
		file:   file,
		graphs: make(map[string]*flow.Graph, len(file.Streams)),
		raw:    slices.Clone(data),
	}
	for name, questions := range file.Streams {
		s.graphs[name] = flow.NewGraph(questions)
	}
	return s, nil
}

func (s *Study) Info() model.StudyInfo { return s.file.StudyInfo }

// Raw returns the study file exactly as it was loaded.
func (s *Study) Raw() []byte { return s.raw }

// Graph returns the question graph of a stream.
func (s *Study) Graph(stream string) (*flow.Graph, bool) {
	g, ok := s.graphs[stream]
	return g, ok
}

// StartingQuestionID returns the first question of a stream.
func (s *Study) StartingQuestionID(stream string) (string, bool) {
	id, ok := s.file.Meta.StartingQuestionIDs[stream]
	return id, ok
}

// Streams returns the stream names in lexical order.
func (s *Study) Streams() []string {
	names := make([]string, 0, len(s.graphs))
	for name := range s.graphs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ScheduledStream returns the stream of the pingsToday-th ping (0-based)
// on weekday. When the schedule has no such ping it returns the error
// stream and false.
func (s *Study) ScheduledStream(weekday time.Weekday, pingsToday int) (string, bool) {
	info := s.file.StudyInfo
	if pingsToday < 0 || pingsToday >= len(info.Frequency.HoursEveryday) {
		return info.StreamInCaseOfError, false
	}
	day := info.StreamsOrder[weekday]
	if pingsToday >= len(day) {
		return info.StreamInCaseOfError, false
	}
	return day[pingsToday], true
}

// ReplaceableByFollowup reports whether a due follow-up stream may take
// the place of stream.
func (s *Study) ReplaceableByFollowup(stream string) bool {
	return !slices.Contains(s.file.StudyInfo.StreamsNotReplacedByFollowupStream, stream)
}

// Active reports whether t falls within the study period.
func (s *Study) Active(t time.Time) bool {
	info := s.file.StudyInfo
	return !t.Before(info.StartDate) && t.Before(info.EndDate)
}
