package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wellping/internal/apperror"
	"wellping/internal/config"
	"wellping/internal/flow"
	"wellping/internal/model"
	"wellping/internal/study"
)

// PingStore persists ping records.
type PingStore interface {
	Insert(ctx context.Context, ping *model.Ping) error
	GetByID(ctx context.Context, id string) (*model.Ping, error)
	ListSince(ctx context.Context, username string, since time.Time) ([]*model.Ping, error)
}

// ActivePings remembers the unfinished ping of each participant.
type ActivePings interface {
	SetActive(ctx context.Context, username, pingID string) error
	GetActive(ctx context.Context, username string) (string, error)
	ClearActive(ctx context.Context, username, pingID string) error
}

// stateDeleter is implemented by state stores that can drop the state of
// a completed ping.
type stateDeleter interface {
	DeleteSessionState(ctx context.Context, pingID string) error
}

// StartPingRequest is the request body for starting a ping
type StartPingRequest struct {
	// TZOffset is the client's UTC offset in minutes, UTC = local + offset.
	TZOffset         int        `json:"tzOffset" validate:"min=-840,max=720"`
	NotificationTime *time.Time `json:"notificationTime"`
}

// StartPingResponse describes the started or resumed ping
type StartPingResponse struct {
	Ping     *model.Ping   `json:"ping"`
	Resumed  bool          `json:"resumed"`
	Question *QuestionView `json:"question"`
}

// QuestionView is the current question as shown to the participant.
type QuestionView struct {
	PingID     string          `json:"pingId"`
	Finished   bool            `json:"finished"`
	QuestionID string          `json:"questionId,omitempty"`
	Prompt     string          `json:"prompt,omitempty"`
	ExtraData  model.ExtraData `json:"extraData,omitempty"`
	Question   *model.Question `json:"question,omitempty"`
}

// PingService starts pings and routes participant actions to their
// survey session.
type PingService struct {
	study       *study.Study
	pings       PingStore
	active      ActivePings
	futures     FuturePingQueue
	states      SessionStateStore
	manager     *SessionManager
	broadcaster Broadcaster
	debug       config.Debug
	timeout     time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// NewPingService creates a new ping service. It installs itself as the
// completion and upload-status handler of deps.
func NewPingService(
	st *study.Study,
	pings PingStore,
	active ActivePings,
	deps SessionDeps,
	resolver config.Resolver,
	debug config.Debug,
) *PingService {
	deps = deps.withDefaults()
	s := &PingService{
		study:   st,
		pings:   pings,
		active:  active,
		futures: deps.Futures,
		states:  deps.States,
		debug:   debug,
		timeout: deps.Timeout,
		now:     deps.Now,
		log:     deps.Logger,
	}
	deps.OnFinish = s.onPingFinished
	deps.OnUploadStatus = s.onUploadStatus
	s.manager = NewSessionManager(deps, resolverConfig(resolver), resolver.MaxBranchHops)
	return s
}

func resolverConfig(c config.Resolver) flow.ResolverConfig {
	return flow.ResolverConfig{
		ReservedKey:     c.ReservedKey,
		ReservedPrefix:  c.ReservedPrefix,
		PreserveCaseFor: c.PreserveCaseFor,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *PingService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Sessions exposes the session manager, mainly for shutdown.
func (s *PingService) Sessions() *SessionManager { return s.manager }

// StartPing resumes the participant's unfinished ping, or starts a new one
// on the stream scheduled for now.
func (s *PingService) StartPing(ctx context.Context, username string, req StartPingRequest) (*StartPingResponse, error) {
	now := s.now().UTC()

	if ping, err := s.resumable(ctx, username, now); err != nil {
		return nil, err
	} else if ping != nil {
		view, err := s.CurrentQuestion(ctx, username, ping.ID)
		if err != nil {
			return nil, err
		}
		return &StartPingResponse{Ping: ping, Resumed: true, Question: view}, nil
	}

	if !s.debug.IgnoreNotificationTime {
		if !s.study.Active(now) {
			return nil, apperror.NewConflictError("the study is not running")
		}
		if req.NotificationTime != nil && s.expired(*req.NotificationTime, now) {
			return nil, apperror.NewConflictError("this ping has expired")
		}
	}

	notificationTime := now
	if req.NotificationTime != nil {
		notificationTime = req.NotificationTime.UTC()
	}
	ping := &model.Ping{
		ID:               uuid.NewString(),
		Username:         username,
		NotificationTime: notificationTime,
		StartTime:        now,
		TZOffset:         req.TZOffset,
	}

	stream, err := s.chooseStream(ctx, username, req.TZOffset, now)
	if err != nil {
		return nil, err
	}
	if err := s.openStream(ctx, ping, stream); err != nil {
		fallback := s.study.Info().StreamInCaseOfError
		if !apperror.IsContentDefect(err) || stream == fallback {
			return nil, err
		}
		s.log.Error("Stream cannot be started, using the error stream",
			zap.String("stream", stream),
			zap.String("fallback", fallback),
			zap.Error(err),
		)
		if err := s.openStream(ctx, ping, fallback); err != nil {
			return nil, err
		}
	}

	if err := s.pings.Insert(ctx, ping); err != nil {
		return nil, fmt.Errorf("failed to save ping: %w", err)
	}
	if err := s.active.SetActive(ctx, username, ping.ID); err != nil {
		s.log.Warn("Failed to remember active ping", zap.String("pingId", ping.ID), zap.Error(err))
	}
	s.log.Info("Ping started",
		zap.String("pingId", ping.ID),
		zap.String("username", username),
		zap.String("stream", ping.StreamName),
	)

	view, err := s.CurrentQuestion(ctx, username, ping.ID)
	if err != nil {
		return nil, err
	}
	return &StartPingResponse{Ping: ping, Question: view}, nil
}

func (s *PingService) resumable(ctx context.Context, username string, now time.Time) (*model.Ping, error) {
	pingID, err := s.active.GetActive(ctx, username)
	if err != nil {
		s.log.Warn("Failed to read active ping", zap.String("username", username), zap.Error(err))
		return nil, nil
	}
	if pingID == "" {
		return nil, nil
	}
	ping, err := s.pings.GetByID(ctx, pingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ping: %w", err)
	}
	if ping == nil || ping.Completed() {
		return nil, nil
	}
	if !s.debug.IgnoreNotificationTime && s.expired(ping.NotificationTime, now) {
		s.log.Info("Active ping expired", zap.String("pingId", ping.ID))
		return nil, nil
	}
	return ping, nil
}

func (s *PingService) expired(notificationTime, now time.Time) bool {
	minutes := s.study.Info().Frequency.ExpireAfterMinutes
	return now.Sub(notificationTime) > time.Duration(minutes*float64(time.Minute))
}

// chooseStream picks the stream of the participant's next ping today. A
// due follow-up stream takes the place of scheduled streams that allow
// it; the error stream used past the schedule is never replaced.
func (s *PingService) chooseStream(ctx context.Context, username string, tzOffset int, now time.Time) (string, error) {
	offset := time.Duration(tzOffset) * time.Minute
	local := now.Add(-offset)
	y, m, d := local.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(offset)

	today, err := s.pings.ListSince(ctx, username, dayStart)
	if err != nil {
		return "", fmt.Errorf("failed to list today's pings: %w", err)
	}
	stream, scheduled := s.study.ScheduledStream(local.Weekday(), len(today))
	if !scheduled {
		s.log.Warn("No ping scheduled at this point of the day, using the error stream",
			zap.String("username", username),
			zap.Int("pingsToday", len(today)),
			zap.String("stream", stream),
		)
		return stream, nil
	}

	if !s.study.ReplaceableByFollowup(stream) {
		return stream, nil
	}
	due, err := s.futures.DequeueIfAny(ctx, username, now)
	if err != nil {
		s.log.Warn("Failed to read future ping queue", zap.String("username", username), zap.Error(err))
		return stream, nil
	}
	if due == nil {
		return stream, nil
	}
	if _, ok := s.study.Graph(due.StreamName); !ok {
		s.log.Error("Queued follow-up stream does not exist", zap.String("stream", due.StreamName))
		return stream, nil
	}
	s.log.Info("Follow-up stream replaces scheduled stream",
		zap.String("scheduled", stream),
		zap.String("followup", due.StreamName),
	)
	return due.StreamName, nil
}

func (s *PingService) openStream(ctx context.Context, ping *model.Ping, stream string) error {
	graph, ok := s.study.Graph(stream)
	if !ok {
		return apperror.NewContentDefectError("stream %q does not exist", stream)
	}
	start, ok := s.study.StartingQuestionID(stream)
	if !ok {
		return apperror.NewContentDefectError("stream %q has no starting question", stream)
	}
	ping.StreamName = stream
	return s.manager.Open(ctx, ping, graph, start)
}

// withSession runs fn on the session of one of username's pings, opening
// it from the stored state when needed.
func (s *PingService) withSession(ctx context.Context, username, pingID string, fn func(*SurveySession) error) error {
	if !s.manager.IsOpen(pingID) {
		ping, err := s.pings.GetByID(ctx, pingID)
		if err != nil {
			return fmt.Errorf("failed to get ping: %w", err)
		}
		if ping == nil || ping.Username != username {
			return apperror.NewNotFoundError("ping")
		}
		if ping.Completed() {
			return apperror.NewConflictError("ping is already completed")
		}
		graph, ok := s.study.Graph(ping.StreamName)
		if !ok {
			return apperror.NewContentDefectError("stream %q does not exist", ping.StreamName)
		}
		start, _ := s.study.StartingQuestionID(ping.StreamName)
		if err := s.manager.Open(ctx, ping, graph, start); err != nil {
			return err
		}
	}

	return s.manager.With(pingID, func(session *SurveySession) error {
		if session.Ping().Username != username {
			return apperror.NewNotFoundError("ping")
		}
		return fn(session)
	})
}

// CurrentQuestion returns the question the participant should answer.
func (s *PingService) CurrentQuestion(ctx context.Context, username, pingID string) (*QuestionView, error) {
	var view *QuestionView
	err := s.withSession(ctx, username, pingID, func(session *SurveySession) error {
		view = questionView(session)
		return nil
	})
	return view, err
}

// RecordAnswer records the answer to the current question.
func (s *PingService) RecordAnswer(ctx context.Context, username, pingID, questionID string, in AnswerInput) (*model.Answer, error) {
	var answer *model.Answer
	err := s.withSession(ctx, username, pingID, func(session *SurveySession) error {
		var err error
		answer, err = session.RecordAnswer(ctx, questionID, in)
		return err
	})
	return answer, err
}

// Next advances the ping and returns the new current question. The view
// is marked finished once the survey is over.
func (s *PingService) Next(ctx context.Context, username, pingID string) (*QuestionView, error) {
	var view *QuestionView
	err := s.withSession(ctx, username, pingID, func(session *SurveySession) error {
		if err := session.AdvanceToNext(ctx); err != nil {
			return err
		}
		view = questionView(session)
		return nil
	})
	return view, err
}

// State returns the resumable state of an open ping.
func (s *PingService) State(ctx context.Context, username, pingID string) (*model.SessionState, error) {
	var state *model.SessionState
	err := s.withSession(ctx, username, pingID, func(session *SurveySession) error {
		state = session.State()
		return nil
	})
	return state, err
}

// FuturePings lists the participant's queued follow-up streams.
func (s *PingService) FuturePings(ctx context.Context, username string) ([]model.FuturePing, error) {
	entries, err := s.futures.List(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list future pings: %w", err)
	}
	if entries == nil {
		entries = []model.FuturePing{}
	}
	return entries, nil
}

func (s *PingService) onPingFinished(ping *model.Ping) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.active.ClearActive(ctx, ping.Username, ping.ID); err != nil {
		s.log.Warn("Failed to clear active ping", zap.String("pingId", ping.ID), zap.Error(err))
	}
	if d, ok := s.states.(stateDeleter); ok {
		if err := d.DeleteSessionState(ctx, ping.ID); err != nil {
			s.log.Warn("Failed to delete session state", zap.String("pingId", ping.ID), zap.Error(err))
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.SendToUser(ping.Username, EventPingCompleted, ping)
	}
}

func (s *PingService) onUploadStatus(username string, status UploadStatus, err error) {
	if s.broadcaster == nil {
		return
	}
	payload := map[string]interface{}{"status": status}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.broadcaster.SendToUser(username, EventUploadStatus, payload)
}

func questionView(session *SurveySession) *QuestionView {
	view := &QuestionView{PingID: session.Ping().ID, Finished: session.Finished()}
	q, ok := session.CurrentQuestion()
	if !ok {
		return view
	}
	view.QuestionID = session.ResolvedQuestionID()
	view.Prompt = session.RenderedPrompt()
	view.ExtraData = session.CurrentQuestionData().ExtraData
	view.Question = q
	return view
}
