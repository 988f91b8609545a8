package common

import (
	"github.com/google/uuid"
)

// NewAttemptID generates a unique search attempt ID used as a log correlation id
// Format: srch_<uuid>
func NewAttemptID() string {
	return "srch_" + uuid.New().String()
}

// NewClientID generates a unique WebSocket client ID
// Format: ws_<uuid>
func NewClientID() string {
	return "ws_" + uuid.New().String()
}
