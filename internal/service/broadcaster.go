package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	SendToUser(username string, msgType string, payload interface{})
	DisconnectUser(username string)
}

const (
	EventUploadStatus  = "upload_status"
	EventPingCompleted = "ping_completed"
)
