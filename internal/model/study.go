package model

import "time"

// StudyFile is the study definition distributed to participants.
type StudyFile struct {
	StudyInfo StudyInfo                `json:"studyInfo"`
	Meta      StudyMeta                `json:"meta"`
	Streams   map[string]QuestionsList `json:"streams" validate:"required,min=1,dive,keys,wellping_id,endkeys,required"`
}

type StudyInfo struct {
	ID             string    `json:"id" validate:"required,wellping_id"`
	ServerURL      string    `json:"serverURL" validate:"required,url"`
	ConsentFormURL string    `json:"consentFormUrl" validate:"required,url"`
	ContactEmail   string    `json:"contactEmail,omitempty" validate:"omitempty,email"`
	WeekStartsOn   int       `json:"weekStartsOn" validate:"min=0,max=6"`
	StartDate      time.Time `json:"startDate" validate:"required"`
	EndDate        time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Frequency      Frequency `json:"frequency"`

	// StreamsOrder lists, per weekday (0 is Sunday regardless of
	// WeekStartsOn), the stream of each of the day's pings.
	StreamsOrder                       map[time.Weekday][]string `json:"streamsOrder" validate:"len=7,dive,dive,wellping_id"`
	StreamInCaseOfError                string                    `json:"streamInCaseOfError" validate:"required,wellping_id"`
	StreamsNotReplacedByFollowupStream []string                  `json:"streamsNotReplacedByFollowupStream" validate:"dive,wellping_id"`

	NotificationContent NotificationContent `json:"notificationContent"`
}

type Frequency struct {
	ExpireAfterMinutes   float64     `json:"expireAfterMinutes" validate:"gt=0"`
	HoursEveryday        []int       `json:"hoursEveryday" validate:"required,min=1,dive,min=0,max=23"`
	RandomMinuteAddition MinuteRange `json:"randomMinuteAddition"`
}

type MinuteRange struct {
	Min float64 `json:"min" validate:"gte=0"`
	Max float64 `json:"max" validate:"gtfield=Min"`
}

type NotificationContent struct {
	Default NotificationText   `json:"default"`
	Bonus   *BonusNotification `json:"bonus,omitempty"`
}

type NotificationText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type BonusNotification struct {
	NotificationText
	NumberOfCompletionEachWeek int `json:"numberOfCompletionEachWeek" validate:"gt=0"`
}

type StudyMeta struct {
	// StartingQuestionIDs maps stream names to the first question.
	StartingQuestionIDs map[string]string `json:"startingQuestionIds" validate:"required,dive,keys,wellping_id,endkeys,wellping_id"`
}
