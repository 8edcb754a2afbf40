package main

import (
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// renderFrame formats a frame as a short text block.
func renderFrame(f domain.Frame) string {
	var b strings.Builder

	if f.TraceID == "" {
		b.WriteString("\n[idle]\n")
		return b.String()
	}

	mode := "manual"
	if f.Tracking {
		mode = "live"
	}
	position := "-"
	if f.Count > 0 {
		position = fmt.Sprintf("%d/%d", f.Index+1, f.Count)
	}
	fmt.Fprintf(&b, "\n[%s] %s %s", f.TraceID, position, mode)
	if f.Status != "" {
		fmt.Fprintf(&b, " (%s)", f.Status)
	}
	b.WriteString("\n")

	if f.Event != nil {
		fmt.Fprintf(&b, "  event: %s", f.Event.Type)
		if f.Event.AgentID != "" {
			fmt.Fprintf(&b, " agent=%s", f.Event.AgentID)
		}
		b.WriteString("\n")
	}

	for _, n := range f.Nodes {
		marker := " "
		if n.Active {
			marker = "*"
		}
		fmt.Fprintf(&b, "  %s %s %s", marker, n.Kind, n.NodeID)
		if n.ActiveTool != "" {
			fmt.Fprintf(&b, " using %s", n.ActiveTool)
		}
		if n.Info != "" {
			fmt.Fprintf(&b, " [%s] %s", n.InfoType, n.Info)
		}
		b.WriteString("\n")
	}

	if f.Result != nil {
		fmt.Fprintf(&b, "  result (%s): %s\n", f.Result.Status, f.Result.Text())
	}
	return b.String()
}
