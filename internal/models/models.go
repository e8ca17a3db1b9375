package models

import "time"

// UserPhoto is a stored photo and a reference the app can display directly
type UserPhoto struct {
	Filepath    string `json:"filepath"`
	WebviewPath string `json:"webviewPath"`
}

// CapturedPhoto is the handle returned by the camera.
// Path is set when the photo lives on the device filesystem, WebPath when it is
// reachable as a URL or data URI.
type CapturedPhoto struct {
	Path    string `json:"path,omitempty"`
	WebPath string `json:"webPath,omitempty"`
	Format  string `json:"format,omitempty"`
}

// Device represents an installed app instance
type Device struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Event types pushed over the WebSocket
const (
	EventPhotoSaved   = "photo_saved"
	EventPhotoDeleted = "photo_deleted"
	EventError        = "error"
	EventPing         = "ping"
	EventPong         = "pong"
)

// Event represents a WebSocket message
type Event struct {
	Type        string `json:"type"`
	Filepath    string `json:"filepath,omitempty"`
	WebviewPath string `json:"webviewPath,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	Message     string `json:"message,omitempty"`
}
