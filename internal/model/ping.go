package model

import "time"

// Ping is one occurrence of a stream being presented to a participant.
type Ping struct {
	ID               string     `json:"id" bson:"_id"`
	Username         string     `json:"username" bson:"username"`
	StreamName       string     `json:"streamName" bson:"streamName"`
	NotificationTime time.Time  `json:"notificationTime" bson:"notificationTime"`
	StartTime        time.Time  `json:"startTime" bson:"startTime"`
	EndTime          *time.Time `json:"endTime" bson:"endTime"`
	TZOffset         int        `json:"tzOffset" bson:"tzOffset"` // minutes, UTC = local + offset
}

// Completed reports whether the ping has been answered through.
func (p *Ping) Completed() bool {
	return p != nil && p.EndTime != nil
}

// FuturePing is a queued follow-up stream that replaces a regular stream
// once AfterDate has passed.
type FuturePing struct {
	AfterDate  time.Time `json:"afterDate"`
	StreamName string    `json:"streamName"`
}
