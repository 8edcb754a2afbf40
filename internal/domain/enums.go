// Package domain defines the core domain models for crew trace playback.
package domain

// TraceStatus represents the status of a trace.
type TraceStatus string

const (
	TraceStatusRunning   TraceStatus = "running"
	TraceStatusCompleted TraceStatus = "completed"
	TraceStatusFailed    TraceStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s TraceStatus) IsTerminal() bool {
	return s == TraceStatusCompleted || s == TraceStatusFailed
}

// EventType represents the type of an execution event.
type EventType string

const (
	EventTypeLLMCall          EventType = "LLMCall"
	EventTypeToolOutput       EventType = "ToolOutput"
	EventTypeToolInput        EventType = "ToolInput"
	EventTypeTaskStart        EventType = "TaskStart"
	EventTypeCompletion       EventType = "Completion"
	EventTypeFailedCompletion EventType = "FailedCompletion"
	EventTypeDelegate         EventType = "Delegate"
	EventTypeEndDelegate      EventType = "EndDelegate"
	EventTypeAskCoworker      EventType = "AskCoworker"
	EventTypeEndAskCoworker   EventType = "EndAskCoworker"

	// Trace-terminal events
	EventTypeCrewKickoffCompleted EventType = "crew_kickoff_completed"
	EventTypeCrewKickoffFailed    EventType = "crew_kickoff_failed"
)

var knownEventTypes = map[EventType]bool{
	EventTypeLLMCall:              true,
	EventTypeToolOutput:           true,
	EventTypeToolInput:            true,
	EventTypeTaskStart:            true,
	EventTypeCompletion:           true,
	EventTypeFailedCompletion:     true,
	EventTypeDelegate:             true,
	EventTypeEndDelegate:          true,
	EventTypeAskCoworker:          true,
	EventTypeEndAskCoworker:       true,
	EventTypeCrewKickoffCompleted: true,
	EventTypeCrewKickoffFailed:    true,
}

// IsKnown reports whether the type belongs to the closed event taxonomy.
func (t EventType) IsKnown() bool {
	return knownEventTypes[t]
}

// IsTerminal reports whether the event ends the trace.
func (t EventType) IsTerminal() bool {
	return t == EventTypeCrewKickoffCompleted || t == EventTypeCrewKickoffFailed
}

// ProcessKind describes how a crew dispatches its tasks.
type ProcessKind string

const (
	ProcessSequential   ProcessKind = "sequential"
	ProcessHierarchical ProcessKind = "hierarchical"
)

// NodeKind identifies the kind of diagram node an activity record refers to.
type NodeKind string

const (
	NodeKindAgent NodeKind = "agent"
	NodeKindTool  NodeKind = "tool"
	NodeKindMcp   NodeKind = "mcp"
)
