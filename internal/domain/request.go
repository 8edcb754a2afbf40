package domain

// KickoffRequest starts a crew run.
type KickoffRequest struct {
	Inputs map[string]string `json:"inputs,omitempty"`
}

// KickoffResponse carries the trace id of the started run.
type KickoffResponse struct {
	TraceID string `json:"trace_id"`
}

// PollResponse is returned for every poll tick. NextSeq is the arrival
// position of the last returned event; passing it back as after_seq resumes
// right after it.
type PollResponse struct {
	Events  []ExecutionEvent `json:"events"`
	NextSeq int64            `json:"next_seq"`
}

// AppendEventsRequest is posted by the crew runtime to record events.
type AppendEventsRequest struct {
	Events []ExecutionEvent `json:"events"`
}

// AppendEventsResponse reports how many events were stored or rejected.
type AppendEventsResponse struct {
	Appended int            `json:"appended"`
	Rejected []RejectedItem `json:"rejected,omitempty"`
}

// RejectedItem names an event refused by the ingest policy.
type RejectedItem struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// SessionStartRequest binds the viewer session to a trace.
type SessionStartRequest struct {
	TraceID  string         `json:"trace_id"`
	Topology StaticTopology `json:"topology"`
}

// SessionKickoffRequest kicks off a crew and starts following its trace.
type SessionKickoffRequest struct {
	CrewID   string            `json:"crew_id"`
	Inputs   map[string]string `json:"inputs,omitempty"`
	Topology StaticTopology    `json:"topology"`
}

// CursorRequest moves the playback cursor.
type CursorRequest struct {
	Index int `json:"index"`
}
