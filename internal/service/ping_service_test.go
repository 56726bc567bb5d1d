package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellping/internal/apperror"
	"wellping/internal/config"
	"wellping/internal/model"
	"wellping/internal/study"
)

type pingFixture struct {
	*sessionFixture
	active      *fakeActive
	broadcaster *fakeBroadcaster
	svc         *PingService
}

func newPingFixture(t *testing.T, debug config.Debug) *pingFixture {
	t.Helper()
	st, err := study.LoadFile("../study/testdata/study.json")
	require.NoError(t, err)

	f := &pingFixture{
		sessionFixture: newSessionFixture(),
		active:         newFakeActive(),
		broadcaster:    &fakeBroadcaster{},
	}
	deps := f.deps()
	deps.OnFinish = nil
	f.svc = NewPingService(st, f.pings, f.active, deps, config.Default().Resolver, debug)
	f.svc.SetBroadcaster(f.broadcaster)
	t.Cleanup(f.svc.Sessions().Wait)
	return f
}

func TestStartPingUsesSchedule(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()

	// 2026-03-02 09:00 UTC is a Monday: people, then mood.
	res, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, "people", res.Ping.StreamName)
	assert.Equal(t, "names", res.Question.QuestionID)
	assert.Equal(t, "Who did you talk to today?", res.Question.Prompt)

	active, err := f.active.GetActive(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, res.Ping.ID, active)

	again, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, res.Ping.ID, again.Ping.ID)
}

func TestStartPingCountsTodaysPings(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()

	first, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	f.active.ClearActive(ctx, "ada", first.Ping.ID)

	second, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mood", second.Ping.StreamName)
	assert.Equal(t, "happy", second.Question.QuestionID)
}

func TestStartPingUsesLocalDay(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	f.clock.Advance(24 * time.Hour)

	// 09:00 UTC on Tuesday (mood first) is still Monday 23:00 at UTC-10.
	res, err := f.svc.StartPing(context.Background(), "ada", StartPingRequest{TZOffset: 600})
	require.NoError(t, err)
	assert.Equal(t, "people", res.Ping.StreamName)
	assert.Equal(t, 600, res.Ping.TZOffset)
}

func TestDueFollowupReplacesReplaceableStream(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()
	require.NoError(t, f.futures.Enqueue(ctx, "ada", model.FuturePing{AfterDate: f.clock.Now().Add(-time.Hour), StreamName: "followup"}))

	// people is never replaced.
	first, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "people", first.Ping.StreamName)
	f.active.ClearActive(ctx, "ada", first.Ping.ID)

	second, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "followup", second.Ping.StreamName)
	assert.Equal(t, "fu_check", second.Question.QuestionID)

	queued, err := f.svc.FuturePings(ctx, "ada")
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestExtraPingKeepsErrorStreamAndQueue(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()

	for _, want := range []string{"people", "mood"} {
		res, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
		require.NoError(t, err)
		require.Equal(t, want, res.Ping.StreamName)
		f.active.ClearActive(ctx, "ada", res.Ping.ID)
	}

	due := model.FuturePing{AfterDate: f.clock.Now().Add(-time.Hour), StreamName: "followup"}
	require.NoError(t, f.futures.Enqueue(ctx, "ada", due))

	// hoursEveryday has two entries, so a third ping gets the error stream.
	third, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mood", third.Ping.StreamName)
	assert.Equal(t, "happy", third.Question.QuestionID)

	queued, err := f.svc.FuturePings(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, []model.FuturePing{due}, queued)
}

func TestStartPingOutsideStudy(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	f.clock.Advance(365 * 24 * time.Hour)

	_, err := f.svc.StartPing(context.Background(), "ada", StartPingRequest{})
	assert.True(t, apperror.IsType(err, apperror.ErrorTypeConflict))

	g := newPingFixture(t, config.Debug{IgnoreNotificationTime: true})
	g.clock.Advance(365 * 24 * time.Hour)
	_, err = g.svc.StartPing(context.Background(), "ada", StartPingRequest{})
	assert.NoError(t, err)
}

func TestExpiredNotification(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	old := f.clock.Now().Add(-2 * time.Hour)

	_, err := f.svc.StartPing(context.Background(), "ada", StartPingRequest{NotificationTime: &old})
	assert.True(t, apperror.IsType(err, apperror.ErrorTypeConflict))
}

func TestMoodStreamEndToEnd(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()
	f.clock.Advance(24 * time.Hour) // Tuesday starts with mood

	res, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	require.Equal(t, "mood", res.Ping.StreamName)
	pingID := res.Ping.ID

	_, err = f.svc.RecordAnswer(ctx, "ada", pingID, "happy", number(30))
	require.NoError(t, err)
	view, err := f.svc.Next(ctx, "ada", pingID)
	require.NoError(t, err)
	require.Equal(t, "sad", view.QuestionID)

	_, err = f.svc.RecordAnswer(ctx, "ada", pingID, "sad", number(70))
	require.NoError(t, err)
	view, err = f.svc.Next(ctx, "ada", pingID)
	require.NoError(t, err)
	require.Equal(t, "why_sad", view.QuestionID, "the larger answer wins")

	_, err = f.svc.RecordAnswer(ctx, "ada", pingID, "why_sad",
		AnswerInput{Data: &model.AnswerData{HowLongAgo: &model.HowLongAgo{Number: 2, Unit: "days"}}})
	require.NoError(t, err)
	view, err = f.svc.Next(ctx, "ada", pingID)
	require.NoError(t, err)
	assert.True(t, view.Finished)
	assert.Empty(t, view.QuestionID)

	f.svc.Sessions().Wait()
	ping, err := f.pings.GetByID(ctx, pingID)
	require.NoError(t, err)
	assert.True(t, ping.Completed())

	active, err := f.active.GetActive(ctx, "ada")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Contains(t, f.broadcaster.types(), EventPingCompleted)
	assert.Contains(t, f.broadcaster.types(), EventUploadStatus)
	assert.False(t, f.states.has(pingID), "completed pings keep no session state")

	_, err = f.svc.Next(ctx, "ada", pingID)
	assert.True(t, apperror.IsType(err, apperror.ErrorTypeConflict))
}

func TestSessionReopensFromStoredState(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()

	res, err := f.svc.StartPing(ctx, "ada", StartPingRequest{})
	require.NoError(t, err)
	pingID := res.Ping.ID
	_, err = f.svc.RecordAnswer(ctx, "ada", pingID, "names", AnswerInput{Data: &model.AnswerData{Values: []string{"Ada"}}})
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, "ada", pingID)
	require.NoError(t, err)
	want, err := f.svc.State(ctx, "ada", pingID)
	require.NoError(t, err)

	// A new service sharing the same stores, as after a restart.
	st, err := study.LoadFile("../study/testdata/study.json")
	require.NoError(t, err)
	deps := f.deps()
	deps.OnFinish = nil
	restarted := NewPingService(st, f.pings, f.active, deps, config.Default().Resolver, config.Debug{})
	t.Cleanup(restarted.Sessions().Wait)

	view, err := restarted.CurrentQuestion(ctx, "ada", pingID)
	require.NoError(t, err)
	assert.Equal(t, "closeness_1", view.QuestionID)
	assert.Equal(t, "How close do you feel to your ada?", view.Prompt)

	got, err := restarted.State(ctx, "ada", pingID)
	require.NoError(t, err)
	assert.Equal(t, want.CurrentQuestionData, got.CurrentQuestionData)
	assert.Equal(t, want.NextQuestionsDataStack, got.NextQuestionsDataStack)

	_, err = restarted.CurrentQuestion(ctx, "bob", pingID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMalformedStoredStateStartsFresh(t *testing.T) {
	f := newPingFixture(t, config.Debug{})
	ctx := context.Background()
	st, err := study.LoadFile("../study/testdata/study.json")
	require.NoError(t, err)

	ping := &model.Ping{ID: "p9", Username: "ada", StreamName: "mood", StartTime: f.clock.Now(), NotificationTime: f.clock.Now()}
	require.NoError(t, f.pings.Insert(ctx, ping))
	require.NoError(t, f.states.StoreSessionState(ctx, "p9", &model.SessionState{
		CurrentQuestionData: model.CurrentQuestionData{QuestionID: "no_longer_here"},
	}))

	deps := f.deps()
	deps.OnFinish = nil
	svc := NewPingService(st, f.pings, f.active, deps, config.Default().Resolver, config.Debug{})
	t.Cleanup(svc.Sessions().Wait)

	view, err := svc.CurrentQuestion(ctx, "ada", "p9")
	require.NoError(t, err)
	assert.Equal(t, "happy", view.QuestionID)
}
