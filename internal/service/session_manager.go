package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"wellping/internal/apperror"
	"wellping/internal/flow"
	"wellping/internal/model"
)

type managedSession struct {
	mu      sync.Mutex
	session *SurveySession
}

// SessionManager keeps the open survey sessions and runs at most one call
// per session at a time.
type SessionManager struct {
	deps     SessionDeps
	resolver flow.ResolverConfig
	maxHops  int
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession

	// Background work of sessions that were closed.
	retired sync.WaitGroup
}

// NewSessionManager creates a manager. deps.OnFinish is called after the
// finished session has been closed.
func NewSessionManager(deps SessionDeps, resolver flow.ResolverConfig, maxHops int) *SessionManager {
	deps = deps.withDefaults()
	m := &SessionManager{
		resolver: resolver,
		maxHops:  maxHops,
		log:      deps.Logger,
		sessions: make(map[string]*managedSession),
	}
	onFinish := deps.OnFinish
	deps.OnFinish = func(ping *model.Ping) {
		m.close(ping.ID)
		if onFinish != nil {
			onFinish(ping)
		}
	}
	m.deps = deps
	return m
}

// Open makes the session of ping available, resuming its stored state
// when there is one. State that cannot be restored is discarded and the
// session starts fresh at startingQuestionID.
func (m *SessionManager) Open(ctx context.Context, ping *model.Ping, graph *flow.Graph, startingQuestionID string) error {
	if m.IsOpen(ping.ID) {
		return nil
	}

	previous, err := m.deps.States.LoadSessionState(ctx, ping.ID)
	if err != nil {
		if !apperror.IsMalformedState(err) {
			return apperror.NewPersistenceError("load session state", err)
		}
		m.log.Warn("Discarding unreadable session state", zap.String("pingId", ping.ID), zap.Error(err))
		previous = nil
	}

	engine := flow.NewEngine(graph, flow.NewResolver(graph, m.resolver), m.maxHops)
	session := NewSurveySession(ping, engine, m.deps)
	err = session.Initialize(ctx, startingQuestionID, previous)
	if previous != nil && apperror.IsMalformedState(err) {
		m.log.Warn("Stored session state does not match the study, starting fresh", zap.String("pingId", ping.ID), zap.Error(err))
		session = NewSurveySession(ping, engine, m.deps)
		err = session.Initialize(ctx, startingQuestionID, nil)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[ping.ID]; !ok {
		m.sessions[ping.ID] = &managedSession{session: session}
	}
	return nil
}

func (m *SessionManager) IsOpen(pingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[pingID]
	return ok
}

// With runs fn with exclusive access to the open session of pingID.
func (m *SessionManager) With(pingID string, fn func(*SurveySession) error) error {
	m.mu.Lock()
	ms, ok := m.sessions[pingID]
	m.mu.Unlock()
	if !ok {
		return apperror.NewNotFoundError("session")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	return fn(ms.session)
}

func (m *SessionManager) close(pingID string) {
	m.mu.Lock()
	ms, ok := m.sessions[pingID]
	delete(m.sessions, pingID)
	m.mu.Unlock()
	if !ok {
		return
	}
	// The finishing call still holds ms.mu, so only the background work is
	// awaited here.
	session := ms.session
	m.retired.Add(1)
	go func() {
		defer m.retired.Done()
		session.Wait()
	}()
}

// Wait blocks until the background work of every session has finished.
func (m *SessionManager) Wait() {
	m.mu.Lock()
	open := make([]*SurveySession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		open = append(open, ms.session)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Wait()
	}
	m.retired.Wait()
}
