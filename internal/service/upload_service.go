package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

// PingLister reads a participant's pings.
type PingLister interface {
	ListByUsername(ctx context.Context, username string) ([]*model.Ping, error)
}

// AnswerLister reads a participant's answers.
type AnswerLister interface {
	ListByUsername(ctx context.Context, username string) ([]*model.Answer, error)
}

// UploadPayload is posted to the study server.
type UploadPayload struct {
	User    UploadUser      `json:"user"`
	Pings   []*model.Ping   `json:"pings"`
	Answers []*model.Answer `json:"answers"`
}

type UploadUser struct {
	Username string `json:"username"`
	StudyID  string `json:"studyId"`
}

// UploadService posts a participant's pings and answers to the study
// server. Repeated failures open a circuit breaker so uploads fail fast
// until the server recovers.
type UploadService struct {
	url        string
	studyID    string
	httpClient *http.Client
	pings      PingLister
	answers    AnswerLister
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// NewUploadService creates an uploader posting to url.
func NewUploadService(url, studyID string, timeout time.Duration, pings PingLister, answers AnswerLister, logger *zap.Logger) *UploadService {
	s := &UploadService{
		url:     url,
		studyID: studyID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pings:   pings,
		answers: answers,
		log:     logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upload",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// UploadAsync collects and posts the participant's data, reporting each
// stage through status.
func (s *UploadService) UploadAsync(ctx context.Context, username string, status func(UploadStatus, error)) error {
	notify := func(st UploadStatus, err error) {
		if status != nil {
			status(st, err)
		}
	}

	notify(UploadStatusUploading, nil)
	start := time.Now()
	if err := s.upload(ctx, username); err != nil {
		s.log.Warn("Upload failed", zap.String("username", username), zap.Error(err))
		notify(UploadStatusError, err)
		return apperror.NewUploadError(err)
	}
	s.log.Info("Upload finished", zap.String("username", username), zap.Duration("duration", time.Since(start)))
	notify(UploadStatusSuccess, nil)
	return nil
}

func (s *UploadService) upload(ctx context.Context, username string) error {
	payload, err := s.collect(ctx, username)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode upload: %w", err)
	}

	_, err = s.breaker.Execute(func() (any, error) {
		return nil, s.post(ctx, body)
	})
	return err
}

func (s *UploadService) collect(ctx context.Context, username string) (*UploadPayload, error) {
	payload := &UploadPayload{User: UploadUser{Username: username, StudyID: s.studyID}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pings, err := s.pings.ListByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to list pings: %w", err)
		}
		payload.Pings = pings
		return nil
	})
	g.Go(func() error {
		answers, err := s.answers.ListByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to list answers: %w", err)
		}
		payload.Answers = answers
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if payload.Pings == nil {
		payload.Pings = []*model.Ping{}
	}
	if payload.Answers == nil {
		payload.Answers = []*model.Answer{}
	}
	return payload, nil
}

func (s *UploadService) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("study server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
