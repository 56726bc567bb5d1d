package handler

import (
	"net/http"
	"time"

	"wellping/internal/model"
)

// StudyInfoProvider exposes the loaded study.
type StudyInfoProvider interface {
	Info() model.StudyInfo
	Streams() []string
}

// studyView is the part of the study a participant may see before and
// during the study.
type studyView struct {
	ID                  string                    `json:"id"`
	ConsentFormURL      string                    `json:"consentFormUrl"`
	ContactEmail        string                    `json:"contactEmail,omitempty"`
	WeekStartsOn        int                       `json:"weekStartsOn"`
	StartDate           time.Time                 `json:"startDate"`
	EndDate             time.Time                 `json:"endDate"`
	Frequency           model.Frequency           `json:"frequency"`
	NotificationContent model.NotificationContent `json:"notificationContent"`
	Streams             []string                  `json:"streams"`
}

type StudyHandler struct {
	study StudyInfoProvider
}

func NewStudyHandler(study StudyInfoProvider) *StudyHandler {
	return &StudyHandler{study: study}
}

// Get handles GET /v1/study
func (h *StudyHandler) Get(w http.ResponseWriter, r *http.Request) {
	info := h.study.Info()
	writeJSON(w, http.StatusOK, studyView{
		ID:                  info.ID,
		ConsentFormURL:      info.ConsentFormURL,
		ContactEmail:        info.ContactEmail,
		WeekStartsOn:        info.WeekStartsOn,
		StartDate:           info.StartDate,
		EndDate:             info.EndDate,
		Frequency:           info.Frequency,
		NotificationContent: info.NotificationContent,
		Streams:             h.study.Streams(),
	})
}
