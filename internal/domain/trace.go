package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// TraceIDLength is the canonical length of a trace id.
const TraceIDLength = 32

// ExecutionEvent is an immutable record emitted by the crew runtime.
type ExecutionEvent struct {
	ID             string          `json:"id"`
	TraceID        string          `json:"trace_id,omitempty"`
	Type           EventType       `json:"type"`
	Timestamp      int64           `json:"timestamp"` // Unix milliseconds
	AgentID        string          `json:"agent_id,omitempty"`
	TaskID         string          `json:"task_id,omitempty"`
	ToolInstanceID string          `json:"tool_instance_id,omitempty"`
	McpInstanceID  string          `json:"mcp_instance_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Coworker       string          `json:"coworker,omitempty"`
	Message        string          `json:"message,omitempty"`
	Output         string          `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Trace is one execution run of a crew as stored by the trace server.
type Trace struct {
	TraceID   string      `json:"trace_id"`
	CrewID    string      `json:"crew_id"`
	Status    TraceStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Output    string      `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Result is the final artifact of a trace, handed to the run history.
type Result struct {
	TraceID    string      `json:"trace_id"`
	Status     TraceStatus `json:"status"`
	Output     string      `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	EventID    string      `json:"event_id"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Text returns the user-visible message of the result.
func (r Result) Text() string {
	if r.Status == TraceStatusFailed {
		return r.Error
	}
	return r.Output
}

// NormalizeTraceID trims the id and restores a leading zero dropped by the
// backend, turning a 31-character id into the canonical 32 characters.
func NormalizeTraceID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) == TraceIDLength-1 {
		return "0" + id
	}
	return id
}
