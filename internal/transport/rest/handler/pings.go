package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"wellping/internal/model"
	"wellping/internal/service"
	"wellping/internal/transport/rest/middleware"
)

// PingAPI is the participant-facing part of service.PingService.
type PingAPI interface {
	StartPing(ctx context.Context, username string, req service.StartPingRequest) (*service.StartPingResponse, error)
	CurrentQuestion(ctx context.Context, username, pingID string) (*service.QuestionView, error)
	RecordAnswer(ctx context.Context, username, pingID, questionID string, in service.AnswerInput) (*model.Answer, error)
	Next(ctx context.Context, username, pingID string) (*service.QuestionView, error)
	State(ctx context.Context, username, pingID string) (*model.SessionState, error)
	FuturePings(ctx context.Context, username string) ([]model.FuturePing, error)
}

// AnswerRequest is the request body for recording an answer
type AnswerRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	service.AnswerInput
}

// PingHandler handles ping endpoints
type PingHandler struct {
	pingSvc PingAPI
}

// NewPingHandler creates a new ping handler
func NewPingHandler(pingSvc PingAPI) *PingHandler {
	return &PingHandler{pingSvc: pingSvc}
}

// Start handles POST /v1/pings
func (h *PingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartPingRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	resp, err := h.pingSvc.StartPing(r.Context(), middleware.GetUsername(r.Context()), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// CurrentQuestion handles GET /v1/pings/{pingId}/question/current
func (h *PingHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := h.pingSvc.CurrentQuestion(r.Context(), middleware.GetUsername(r.Context()), mux.Vars(r)["pingId"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RecordAnswer handles POST /v1/pings/{pingId}/answers
func (h *PingHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	answer, err := h.pingSvc.RecordAnswer(r.Context(), middleware.GetUsername(r.Context()), mux.Vars(r)["pingId"], req.QuestionID, req.AnswerInput)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Next handles POST /v1/pings/{pingId}/next
func (h *PingHandler) Next(w http.ResponseWriter, r *http.Request) {
	view, err := h.pingSvc.Next(r.Context(), middleware.GetUsername(r.Context()), mux.Vars(r)["pingId"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// State handles GET /v1/pings/{pingId}/state
func (h *PingHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.pingSvc.State(r.Context(), middleware.GetUsername(r.Context()), mux.Vars(r)["pingId"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// FuturePings handles GET /v1/future-pings
func (h *PingHandler) FuturePings(w http.ResponseWriter, r *http.Request) {
	queued, err := h.pingSvc.FuturePings(r.Context(), middleware.GetUsername(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if queued == nil {
		queued = []model.FuturePing{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"futurePings": queued})
}
