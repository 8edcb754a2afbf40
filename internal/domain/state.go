package domain

// ActiveNodeState is the derived activity record of one diagram node.
type ActiveNodeState struct {
	NodeID     string    `json:"node_id"`
	Kind       NodeKind  `json:"kind"`
	Active     bool      `json:"active"`
	ActiveTool string    `json:"active_tool,omitempty"`
	Info       string    `json:"info,omitempty"`
	InfoType   EventType `json:"info_type,omitempty"`
}

// Slider describes the playback position selector.
type Slider struct {
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	StartLabel string `json:"start_label"`
	EndLabel   string `json:"end_label"`
}

// Frame is the visualization state at the playback cursor.
type Frame struct {
	TraceID  string            `json:"trace_id"`
	Status   TraceStatus       `json:"status,omitempty"`
	Index    int               `json:"index"`
	Count    int               `json:"count"`
	Tracking bool              `json:"tracking"`
	Slider   Slider            `json:"slider"`
	Event    *ExecutionEvent   `json:"event,omitempty"`
	Nodes    []ActiveNodeState `json:"nodes"`
	Result   *Result           `json:"result,omitempty"`
}

// ActiveNodes returns only the nodes that are currently active.
func (f Frame) ActiveNodes() []ActiveNodeState {
	var out []ActiveNodeState
	for _, n := range f.Nodes {
		if n.Active {
			out = append(out, n)
		}
	}
	return out
}
