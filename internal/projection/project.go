// Package projection folds an event prefix into per-node activity records.
//
// Project is a pure function of its inputs: every call builds its state from
// scratch, so the live view and a scrubbed historical view of the same prefix
// are identical.
package projection

import (
	"sort"
	"strings"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// Interval names. Peer-scoped names are suffixed with ":<peer>".
const (
	intervalTask      = "task"
	intervalLLM       = "llm"
	intervalUse       = "use"
	intervalTool      = "tool:"
	intervalDelegate  = "delegate:"
	intervalDelegated = "delegated:"
	intervalAsk       = "ask:"
	intervalAsked     = "asked:"
)

// Project computes the activity of every node touched by prefix.
// Nodes are ordered by kind (agent, tool, mcp) and then by id.
func Project(prefix []domain.ExecutionEvent, topology domain.StaticTopology) []domain.ActiveNodeState {
	f := newFolder(topology.Index())
	for _, ev := range prefix {
		f.apply(ev)
	}
	return f.states()
}

// ProjectActive is Project filtered to active nodes.
func ProjectActive(prefix []domain.ExecutionEvent, topology domain.StaticTopology) []domain.ActiveNodeState {
	var out []domain.ActiveNodeState
	for _, s := range Project(prefix, topology) {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

type nodeKey struct {
	kind domain.NodeKind
	id   string
}

type interval struct {
	seq        int
	activeTool string
	invoker    string
}

type node struct {
	open     map[string]interval
	info     string
	infoType domain.EventType
}

// delegation is one open Delegate/AskCoworker pair.
type delegation struct {
	kind domain.EventType
	from string
	to   string
	peer string
}

type folder struct {
	idx         domain.TopologyIndex
	nodes       map[nodeKey]*node
	delegations []delegation
	seq         int
}

func newFolder(idx domain.TopologyIndex) *folder {
	return &folder{
		idx:   idx,
		nodes: make(map[nodeKey]*node),
	}
}

func (f *folder) apply(ev domain.ExecutionEvent) {
	switch ev.Type {
	case domain.EventTypeTaskStart:
		if agent := f.taskAgent(ev); agent != "" {
			f.open(agentKey(agent), intervalTask, interval{}, ev)
		}
	case domain.EventTypeLLMCall:
		if agent := f.attributedAgent(ev); agent != "" {
			f.open(agentKey(agent), intervalLLM, interval{}, ev)
		}
	case domain.EventTypeCompletion, domain.EventTypeFailedCompletion:
		f.applyCompletion(ev)
	case domain.EventTypeToolInput:
		f.applyToolInput(ev)
	case domain.EventTypeToolOutput:
		f.applyToolOutput(ev)
	case domain.EventTypeDelegate, domain.EventTypeAskCoworker:
		f.applyDelegate(ev)
	case domain.EventTypeEndDelegate:
		f.applyEndDelegate(ev, domain.EventTypeDelegate)
	case domain.EventTypeEndAskCoworker:
		f.applyEndDelegate(ev, domain.EventTypeAskCoworker)
	case domain.EventTypeCrewKickoffCompleted, domain.EventTypeCrewKickoffFailed:
		f.closeAll()
	}
}

func (f *folder) applyCompletion(ev domain.ExecutionEvent) {
	agent := f.attributedAgent(ev)
	if agent == "" {
		return
	}
	// Only the LLM call ends here; the task interval stays open until the
	// trace terminates or the agent starts another task.
	key := agentKey(agent)
	closed := f.close(key, intervalLLM, ev)
	if ev.Type == domain.EventTypeFailedCompletion && !closed {
		// The failure annotation stays until the next event touches the agent.
		f.touch(f.node(key), ev)
	}
}

func (f *folder) applyToolInput(ev domain.ExecutionEvent) {
	ref := toolRef(ev)
	agent := f.attributedAgent(ev)

	agentTool := ""
	if tool, ok := f.idx.Tool(ev.ToolInstanceID); ok {
		agentTool = displayName(tool.Name, ev.ToolName, tool.ID)
		f.open(nodeKey{domain.NodeKindTool, tool.ID}, intervalUse, interval{activeTool: agentTool, invoker: agent}, ev)
	}
	if mcp, ok := f.idx.Mcp(ev.McpInstanceID); ok {
		mcpTool := displayName(ev.ToolName, mcp.Name, mcp.ID)
		if agentTool == "" {
			agentTool = mcpTool
		}
		f.open(nodeKey{domain.NodeKindMcp, mcp.ID}, intervalUse, interval{activeTool: mcpTool, invoker: agent}, ev)
	}
	if agentTool == "" {
		agentTool = displayName(ev.ToolName, ev.ToolInstanceID, ev.McpInstanceID)
	}
	if agent != "" && ref != "" {
		f.open(agentKey(agent), intervalTool+ref, interval{activeTool: agentTool}, ev)
	}
}

func (f *folder) applyToolOutput(ev domain.ExecutionEvent) {
	ref := toolRef(ev)
	candidates := make([]string, 0, 3)
	if named, ok := f.idx.ResolveAgent(ev.AgentID); ok {
		candidates = append(candidates, named)
	}

	if tool, ok := f.idx.Tool(ev.ToolInstanceID); ok {
		key := nodeKey{domain.NodeKindTool, tool.ID}
		if iv, open := f.openInterval(key, intervalUse); open && iv.invoker != "" {
			candidates = append(candidates, iv.invoker)
		}
		f.close(key, intervalUse, ev)
	}
	if mcp, ok := f.idx.Mcp(ev.McpInstanceID); ok {
		key := nodeKey{domain.NodeKindMcp, mcp.ID}
		if iv, open := f.openInterval(key, intervalUse); open && iv.invoker != "" {
			candidates = append(candidates, iv.invoker)
		}
		f.close(key, intervalUse, ev)
	}
	if len(candidates) == 0 {
		if manager, ok := f.idx.Manager(); ok {
			candidates = append(candidates, manager)
		}
	}
	if ref == "" {
		return
	}

	done := make(map[string]bool, len(candidates))
	for _, agent := range candidates {
		if done[agent] {
			continue
		}
		done[agent] = true
		f.close(agentKey(agent), intervalTool+ref, ev)
	}
}

func (f *folder) applyDelegate(ev domain.ExecutionEvent) {
	from := f.attributedAgent(ev)
	to, known := f.idx.ResolveAgent(ev.Coworker)
	peer := to
	if !known {
		peer = strings.ToLower(strings.TrimSpace(ev.Coworker))
	}
	if from == "" && !known {
		return
	}

	outName, inName := intervalDelegate, intervalDelegated
	if ev.Type == domain.EventTypeAskCoworker {
		outName, inName = intervalAsk, intervalAsked
	}
	if from != "" {
		f.open(agentKey(from), outName+peer, interval{}, ev)
	}
	if known && to != from {
		f.open(agentKey(to), inName+from, interval{}, ev)
	}
	f.delegations = append(f.delegations, delegation{kind: ev.Type, from: from, to: to, peer: peer})
}

// applyEndDelegate closes the most recent open delegation of the given kind
// that agrees with whatever the closing event names.
func (f *folder) applyEndDelegate(ev domain.ExecutionEvent, kind domain.EventType) {
	from, _ := f.idx.ResolveAgent(ev.AgentID)
	peer := ""
	if strings.TrimSpace(ev.Coworker) != "" {
		if id, ok := f.idx.ResolveAgent(ev.Coworker); ok {
			peer = id
		} else {
			peer = strings.ToLower(strings.TrimSpace(ev.Coworker))
		}
	}

	for i := len(f.delegations) - 1; i >= 0; i-- {
		d := f.delegations[i]
		if d.kind != kind {
			continue
		}
		if from != "" && d.from != "" && d.from != from && d.to != from {
			continue
		}
		if peer != "" && d.peer != peer {
			continue
		}
		f.delegations = append(f.delegations[:i], f.delegations[i+1:]...)

		outName, inName := intervalDelegate, intervalDelegated
		if kind == domain.EventTypeAskCoworker {
			outName, inName = intervalAsk, intervalAsked
		}
		if d.from != "" {
			f.close(agentKey(d.from), outName+d.peer, ev)
		}
		if d.to != "" && d.to != d.from {
			f.close(agentKey(d.to), inName+d.from, ev)
		}
		return
	}
}

// attributedAgent returns the agent an event is credited to: a named agent
// always wins, otherwise the manager of a hierarchical crew.
func (f *folder) attributedAgent(ev domain.ExecutionEvent) string {
	if id, ok := f.idx.ResolveAgent(ev.AgentID); ok {
		return id
	}
	if manager, ok := f.idx.Manager(); ok {
		return manager
	}
	return ""
}

// taskAgent is attributedAgent with a fallback to the task's assignee.
func (f *folder) taskAgent(ev domain.ExecutionEvent) string {
	if agent := f.attributedAgent(ev); agent != "" {
		return agent
	}
	if task, ok := f.idx.Task(ev.TaskID); ok && f.idx.HasAgent(task.AgentID) {
		return task.AgentID
	}
	return ""
}

func (f *folder) node(key nodeKey) *node {
	n, ok := f.nodes[key]
	if !ok {
		n = &node{open: make(map[string]interval)}
		f.nodes[key] = n
	}
	return n
}

func (f *folder) open(key nodeKey, name string, iv interval, ev domain.ExecutionEvent) {
	n := f.node(key)
	f.seq++
	iv.seq = f.seq
	n.open[name] = iv
	f.touch(n, ev)
}

// close ends an open interval. A close without a matching open is ignored.
func (f *folder) close(key nodeKey, name string, ev domain.ExecutionEvent) bool {
	n, ok := f.nodes[key]
	if !ok {
		return false
	}
	if _, open := n.open[name]; !open {
		return false
	}
	delete(n.open, name)
	f.touch(n, ev)
	return true
}

func (f *folder) openInterval(key nodeKey, name string) (interval, bool) {
	n, ok := f.nodes[key]
	if !ok {
		return interval{}, false
	}
	iv, open := n.open[name]
	return iv, open
}

func (f *folder) closeAll() {
	for _, n := range f.nodes {
		for name := range n.open {
			delete(n.open, name)
		}
	}
	f.delegations = nil
}

func (f *folder) touch(n *node, ev domain.ExecutionEvent) {
	n.info = ev.Message
	n.infoType = ev.Type
}

func (f *folder) states() []domain.ActiveNodeState {
	out := make([]domain.ActiveNodeState, 0, len(f.nodes))
	for key, n := range f.nodes {
		state := domain.ActiveNodeState{
			NodeID:   key.id,
			Kind:     key.kind,
			Active:   len(n.open) > 0,
			Info:     n.info,
			InfoType: n.infoType,
		}
		latest := 0
		for _, iv := range n.open {
			if iv.activeTool != "" && iv.seq > latest {
				latest = iv.seq
				state.ActiveTool = iv.activeTool
			}
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder(out[i].Kind) < kindOrder(out[j].Kind)
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

func agentKey(id string) nodeKey {
	return nodeKey{kind: domain.NodeKindAgent, id: id}
}

func kindOrder(k domain.NodeKind) int {
	switch k {
	case domain.NodeKindAgent:
		return 0
	case domain.NodeKindTool:
		return 1
	default:
		return 2
	}
}

// toolRef identifies the tool an agent is using for ToolInput/ToolOutput pairing.
func toolRef(ev domain.ExecutionEvent) string {
	switch {
	case ev.ToolInstanceID != "":
		return ev.ToolInstanceID
	case ev.McpInstanceID != "":
		return "mcp:" + ev.McpInstanceID
	default:
		return strings.TrimSpace(ev.ToolName)
	}
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}
