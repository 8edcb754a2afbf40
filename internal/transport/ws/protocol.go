package ws

import "github.com/xiaot623/gogo/crewtrace/internal/domain"

// Message types from client to viewer
const (
	TypeHello  = "hello"
	TypeScrub  = "scrub"
	TypeFollow = "follow"
)

// Message types from viewer to client
const (
	TypeHelloAck = "hello_ack"
	TypeFrame    = "frame"
	TypeError    = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeNoActiveTrace  = "no_active_trace"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type    string `json:"type"`
	Ts      int64  `json:"ts"`
	TraceID string `json:"trace_id,omitempty"`
}

// ScrubMessage moves the playback cursor.
type ScrubMessage struct {
	BaseMessage
	Index int `json:"index"`
}

// FrameMessage pushes the visualization state at the cursor.
type FrameMessage struct {
	BaseMessage
	Frame domain.Frame `json:"frame"`
}

// ErrorMessage reports a failed client request.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
