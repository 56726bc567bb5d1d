package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"wellping/internal/apperror"
	"wellping/internal/flow"
	"wellping/internal/model"
)

// Days after a "yes" at which the follow-up stream becomes due.
var followupDelays = []int{3, 7}

var ErrSurveyFinished = apperror.NewConflictError("survey is already finished")

// SessionStateStore persists resumable session state per ping.
type SessionStateStore interface {
	StoreSessionState(ctx context.Context, pingID string, state *model.SessionState) error
	// LoadSessionState returns nil when nothing was stored.
	LoadSessionState(ctx context.Context, pingID string) (*model.SessionState, error)
}

// AnswerWriter durably records answers.
type AnswerWriter interface {
	Upsert(ctx context.Context, answer *model.Answer) error
}

// FuturePingQueue holds follow-up streams waiting to replace a regular ping.
type FuturePingQueue interface {
	Enqueue(ctx context.Context, username string, entries ...model.FuturePing) error
	DequeueIfAny(ctx context.Context, username string, now time.Time) (*model.FuturePing, error)
	List(ctx context.Context, username string) ([]model.FuturePing, error)
	Len(ctx context.Context, username string) (int64, error)
}

// PingLifecycle records the completion of a ping.
type PingLifecycle interface {
	RecordEndTime(ctx context.Context, pingID string, endTime time.Time) (*model.Ping, error)
}

// UploadStatus is reported while a participant's data is uploaded.
type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusSuccess   UploadStatus = "success"
	UploadStatusError     UploadStatus = "error"
)

// Uploader sends a participant's collected data to the study server.
type Uploader interface {
	UploadAsync(ctx context.Context, username string, status func(UploadStatus, error)) error
}

// SessionDeps are the collaborators and settings shared by all sessions.
type SessionDeps struct {
	States   SessionStateStore
	Answers  AnswerWriter
	Futures  FuturePingQueue
	Uploader Uploader
	Pings    PingLifecycle
	Logger   *zap.Logger
	Now      func() time.Time

	UploadThrottle time.Duration
	// Timeout bounds each collaborator call.
	Timeout time.Duration

	OnUploadStatus func(username string, status UploadStatus, err error)
	// OnFinish is called once, after the final state is stored and the end
	// time is recorded.
	OnFinish func(ping *model.Ping)
}

func (d SessionDeps) withDefaults() SessionDeps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.UploadThrottle <= 0 {
		d.UploadThrottle = 30 * time.Second
	}
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}
	return d
}

// AnswerInput is what a participant submits for the current question.
type AnswerInput struct {
	PreferNotToAnswer bool              `json:"preferNotToAnswer"`
	NextWithoutOption bool              `json:"nextWithoutOption"`
	Data              *model.AnswerData `json:"data"`
}

// SurveySession drives one ping through its stream. It is not safe for
// concurrent use; SessionManager serializes access.
type SurveySession struct {
	ping   *model.Ping
	engine *flow.Engine
	deps   SessionDeps
	log    *zap.Logger

	state      flow.State
	answers    *flow.AnswerStore
	lastUpload *time.Time

	// Answers not yet written to the answer store, keyed by question ID.
	pending   map[string]*model.Answer
	dirty     bool
	finalized bool

	wg sync.WaitGroup
}

// NewSurveySession creates a session for ping. Call Initialize before use.
func NewSurveySession(ping *model.Ping, engine *flow.Engine, deps SessionDeps) *SurveySession {
	deps = deps.withDefaults()
	return &SurveySession{
		ping:    ping,
		engine:  engine,
		deps:    deps,
		log:     deps.Logger.With(zap.String("pingId", ping.ID), zap.String("stream", ping.StreamName)),
		answers: flow.NewAnswerStore(nil),
		pending: make(map[string]*model.Answer),
	}
}

// Initialize restores previous exactly when it is given, otherwise starts
// at startingQuestionID with no answers. The resulting state is stored
// before returning.
func (s *SurveySession) Initialize(ctx context.Context, startingQuestionID string, previous *model.SessionState) error {
	if previous != nil {
		if id := previous.CurrentQuestionData.QuestionID; id != "" {
			if _, ok := s.engine.Graph().Question(id); !ok {
				return apperror.NewMalformedStateError(s.ping.ID, fmt.Errorf("question %q does not exist", id))
			}
		}
		s.state = flow.State{
			Current: model.CurrentQuestionData{
				QuestionID: previous.CurrentQuestionData.QuestionID,
				ExtraData:  previous.CurrentQuestionData.ExtraData.Clone(),
			},
			Stack: model.CloneFrames(previous.NextQuestionsDataStack),
		}
		restored := previous.Answers.Clone()
		for _, a := range restored {
			if a != nil {
				a.Username = s.ping.Username
			}
		}
		s.answers = flow.NewAnswerStore(restored)
		if previous.LastUploadDate != nil {
			t := *previous.LastUploadDate
			s.lastUpload = &t
		}
		s.log.Info("Resumed survey session",
			zap.String("questionId", s.state.Current.QuestionID),
			zap.Int("stackDepth", len(s.state.Stack)),
			zap.Int("answers", s.answers.Len()),
		)
	} else {
		fresh := flow.State{Current: model.CurrentQuestionData{QuestionID: startingQuestionID, ExtraData: model.ExtraData{}}}
		t, err := s.engine.Settle(fresh, s.answers)
		if err != nil {
			return err
		}
		s.state = t.State
		s.log.Info("Started survey session", zap.String("questionId", s.state.Current.QuestionID))
	}

	_ = s.checkpoint(ctx)
	return nil
}

// RecordAnswer stores the answer to the current question under its
// resolved ID, replacing any earlier answer to it.
func (s *SurveySession) RecordAnswer(ctx context.Context, questionID string, in AnswerInput) (*model.Answer, error) {
	if s.finalized {
		return nil, ErrSurveyFinished
	}
	q, ok := s.CurrentQuestion()
	if !ok {
		return nil, apperror.NewConflictError("there is no current question to answer")
	}
	if questionID != q.ID {
		return nil, apperror.NewValidationError(fmt.Sprintf("question %q is not the current question", questionID))
	}
	if err := checkAnswerData(q, in, s.itemLimit(q)); err != nil {
		return nil, err
	}

	answer := &model.Answer{
		PingID:            s.ping.ID,
		Username:          s.ping.Username,
		QuestionID:        s.engine.Resolver().Resolve(q.ID, s.state.Current.ExtraData, s.answers),
		QuestionType:      q.Type,
		PreferNotToAnswer: in.PreferNotToAnswer,
		NextWithoutOption: in.NextWithoutOption,
		Data:              in.Data,
		LastUpdateDate:    s.deps.Now().UTC(),
	}
	s.answers.Put(answer)
	s.pending[answer.QuestionID] = answer.Clone()

	_ = s.checkpoint(ctx)
	return answer.Clone(), nil
}

// AdvanceToNext moves past the current question and any branch questions
// that follow it. When the survey ends the ping is finalized.
func (s *SurveySession) AdvanceToNext(ctx context.Context) error {
	if s.finalized {
		return ErrSurveyFinished
	}
	if s.state.Done() {
		return s.finalize(ctx)
	}

	prevID := s.state.Current.QuestionID
	t, err := s.engine.Next(s.state, s.answers)
	if err != nil {
		s.log.Error("Failed to compute next question", zap.String("questionId", prevID), zap.Error(err))
		return err
	}
	s.state = t.State
	s.log.Debug("Advanced",
		zap.String("from", prevID),
		zap.String("to", s.state.Current.QuestionID),
		zap.Int("steps", t.Steps),
		zap.Int("stackDepth", len(s.state.Stack)),
	)

	if t.FollowupStream != "" {
		s.scheduleFollowup(ctx, t.FollowupStream)
	}
	if t.Done() {
		return s.finalize(ctx)
	}

	_ = s.checkpoint(ctx)
	s.maybeUpload(ctx, false)
	return nil
}

func (s *SurveySession) finalize(ctx context.Context) error {
	if err := s.checkpoint(ctx); err != nil {
		return apperror.NewPersistenceError("store final session state", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	ping, err := s.deps.Pings.RecordEndTime(callCtx, s.ping.ID, s.deps.Now().UTC())
	cancel()
	if err != nil {
		s.log.Error("Failed to record end time", zap.Error(err))
		return fmt.Errorf("failed to record end time: %w", err)
	}
	s.ping = ping
	s.finalized = true
	s.log.Info("Survey finished", zap.Int("answers", s.answers.Len()))

	s.maybeUpload(ctx, true)
	if s.deps.OnFinish != nil {
		p := *ping
		s.deps.OnFinish(&p)
	}
	return nil
}

// checkpoint writes pending answers and the session state. Failures leave
// the session dirty so the next checkpoint retries.
func (s *SurveySession) checkpoint(ctx context.Context) error {
	var errs []error
	for _, id := range sortedKeys(s.pending) {
		callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
		err := s.deps.Answers.Upsert(callCtx, s.pending[id])
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("answer %s: %w", id, err))
			continue
		}
		delete(s.pending, id)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	err := s.deps.States.StoreSessionState(callCtx, s.ping.ID, s.State())
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("session state: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.dirty = true
		s.log.Warn("Failed to persist session, will retry", zap.Error(err))
		return err
	}
	s.dirty = false
	return nil
}

func (s *SurveySession) scheduleFollowup(ctx context.Context, stream string) {
	username := s.ping.Username
	now := s.deps.Now().UTC()
	s.background(ctx, func(ctx context.Context) {
		n, err := s.deps.Futures.Len(ctx, username)
		if err != nil {
			s.log.Warn("Failed to read future ping queue", zap.Error(err))
			return
		}
		if n > 0 {
			s.log.Debug("Follow-up not scheduled, queue is not empty", zap.Int64("queued", n))
			return
		}
		entries := make([]model.FuturePing, len(followupDelays))
		for i, days := range followupDelays {
			entries[i] = model.FuturePing{AfterDate: now.AddDate(0, 0, days), StreamName: stream}
		}
		if err := s.deps.Futures.Enqueue(ctx, username, entries...); err != nil {
			s.log.Warn("Failed to schedule follow-up stream", zap.String("followup", stream), zap.Error(err))
			return
		}
		s.log.Info("Scheduled follow-up stream", zap.String("followup", stream))
	})
}

func (s *SurveySession) maybeUpload(ctx context.Context, force bool) {
	if s.deps.Uploader == nil {
		return
	}
	now := s.deps.Now().UTC()
	if !force && s.lastUpload != nil && now.Sub(*s.lastUpload) < s.deps.UploadThrottle {
		return
	}
	s.lastUpload = &now

	username := s.ping.Username
	report := s.deps.OnUploadStatus
	s.background(ctx, func(ctx context.Context) {
		err := s.deps.Uploader.UploadAsync(ctx, username, func(status UploadStatus, err error) {
			if report != nil {
				report(username, status, err)
			}
		})
		if err != nil {
			s.log.Warn("Upload failed, will retry in the next window", zap.Error(err))
		}
	})
}

// background runs fn without blocking navigation. fn keeps the values of
// ctx but not its cancellation.
func (s *SurveySession) background(ctx context.Context, fn func(ctx context.Context)) {
	parent := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(parent, s.deps.Timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background work started by the session has finished.
func (s *SurveySession) Wait() { s.wg.Wait() }

func (s *SurveySession) Ping() *model.Ping {
	p := *s.ping
	return &p
}

// CurrentQuestion returns the question being answered, if any.
func (s *SurveySession) CurrentQuestion() (*model.Question, bool) {
	if s.state.Done() {
		return nil, false
	}
	return s.engine.Graph().Question(s.state.Current.QuestionID)
}

// CurrentQuestionData returns the current question ID template and its
// bound variables.
func (s *SurveySession) CurrentQuestionData() model.CurrentQuestionData {
	return s.state.Clone().Current
}

// ResolvedQuestionID is the ID the current answer is stored under.
func (s *SurveySession) ResolvedQuestionID() string {
	if s.state.Done() {
		return ""
	}
	return s.engine.Resolver().Resolve(s.state.Current.QuestionID, s.state.Current.ExtraData, s.answers)
}

// RenderedPrompt returns the current question text with placeholders
// resolved.
func (s *SurveySession) RenderedPrompt() string {
	q, ok := s.CurrentQuestion()
	if !ok {
		return ""
	}
	return s.engine.Resolver().Resolve(q.Prompt, s.state.Current.ExtraData, s.answers)
}

// State returns a copy of the resumable session state.
func (s *SurveySession) State() *model.SessionState {
	st := s.state.Clone()
	out := &model.SessionState{
		CurrentQuestionData:    st.Current,
		NextQuestionsDataStack: st.Stack,
		Answers:                s.answers.Snapshot(),
	}
	if s.lastUpload != nil {
		t := *s.lastUpload
		out.LastUploadDate = &t
	}
	return out
}

// Finished reports whether the ping has been finalized.
func (s *SurveySession) Finished() bool { return s.finalized }

// Dirty reports whether some state has not been persisted yet.
func (s *SurveySession) Dirty() bool { return s.dirty }

// itemLimit is the number of items a MultipleText question accepts: max,
// less the items already given to the maxMinus question.
func (s *SurveySession) itemLimit(q *model.Question) int {
	if q.Max <= 0 || q.MaxMinus == "" {
		return q.Max
	}
	id := s.engine.Resolver().Resolve(q.MaxMinus, s.state.Current.ExtraData, s.answers)
	a, _ := s.answers.Answer(id)
	return max(q.Max-a.ItemCount(), 0)
}

var howLongAgoUnits = []string{"hours", "days", "weeks", "months"}

func checkAnswerData(q *model.Question, in AnswerInput, itemLimit int) error {
	d := in.Data
	if d == nil {
		return nil
	}
	invalid := func(format string, args ...any) error {
		return apperror.NewValidationError(fmt.Sprintf("answer to %s: ", q.ID) + fmt.Sprintf(format, args...))
	}

	switch q.Type {
	case model.QuestionTypeSlider:
		if d.Number != nil && (*d.Number < 0 || *d.Number > 100) {
			return invalid("number must be between 0 and 100")
		}
	case model.QuestionTypeChoicesWithSingleAnswer:
		if d.Value != "" && !q.Choices.Names && !hasChoice(q, d.Value) {
			return invalid("unknown choice %q", d.Value)
		}
	case model.QuestionTypeChoicesWithMultipleAnswers:
		for key := range d.Selected {
			if !hasChoice(q, key) {
				return invalid("unknown choice %q", key)
			}
		}
	case model.QuestionTypeYesNo:
		if d.Yes == nil {
			return invalid("yes must be set")
		}
	case model.QuestionTypeMultipleText:
		if q.Max > 0 && len(d.Values) > itemLimit {
			return invalid("at most %d items are allowed", itemLimit)
		}
	case model.QuestionTypeHowLongAgo:
		if h := d.HowLongAgo; h != nil && (h.Number < 0 || !slices.Contains(howLongAgoUnits, h.Unit)) {
			return invalid("howLongAgo needs a non-negative number and one of %v", howLongAgoUnits)
		}
	}
	return nil
}

func hasChoice(q *model.Question, key string) bool {
	for _, c := range q.Choices.Items {
		if c.Key == key {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
