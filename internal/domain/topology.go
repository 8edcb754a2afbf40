package domain

import "strings"

// Agent is a crew member in the static workflow graph.
type Agent struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Task is a unit of work assigned to an agent.
type Task struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AgentID string `json:"agent_id,omitempty"`
}

// ToolInstance is a configured tool node.
type ToolInstance struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// McpInstance is a configured MCP server node.
type McpInstance struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StaticTopology is the read-only workflow graph the projection is computed against.
type StaticTopology struct {
	Agents         []Agent        `json:"agents"`
	Tasks          []Task         `json:"tasks"`
	ToolInstances  []ToolInstance `json:"tool_instances"`
	McpInstances   []McpInstance  `json:"mcp_instances"`
	ManagerAgentID string         `json:"manager_agent_id,omitempty"`
	Process        ProcessKind    `json:"process"`
}

// Hierarchical reports whether the crew runs under a manager agent.
func (t StaticTopology) Hierarchical() bool {
	return t.Process == ProcessHierarchical
}

// Index builds lookup tables over the topology.
func (t StaticTopology) Index() TopologyIndex {
	idx := TopologyIndex{
		agents:    make(map[string]Agent, len(t.Agents)),
		roles:     make(map[string]string, len(t.Agents)),
		tasks:     make(map[string]Task, len(t.Tasks)),
		tools:     make(map[string]ToolInstance, len(t.ToolInstances)),
		mcps:      make(map[string]McpInstance, len(t.McpInstances)),
		managerID: t.ManagerAgentID,
		process:   t.Process,
	}
	for _, a := range t.Agents {
		idx.agents[a.ID] = a
		if role := strings.ToLower(strings.TrimSpace(a.Role)); role != "" {
			if _, dup := idx.roles[role]; !dup {
				idx.roles[role] = a.ID
			}
		}
	}
	for _, task := range t.Tasks {
		idx.tasks[task.ID] = task
	}
	for _, tool := range t.ToolInstances {
		idx.tools[tool.ID] = tool
	}
	for _, m := range t.McpInstances {
		idx.mcps[m.ID] = m
	}
	return idx
}

// TopologyIndex answers id lookups for the projection engine.
type TopologyIndex struct {
	agents    map[string]Agent
	roles     map[string]string
	tasks     map[string]Task
	tools     map[string]ToolInstance
	mcps      map[string]McpInstance
	managerID string
	process   ProcessKind
}

// HasAgent reports whether id names an agent.
func (i TopologyIndex) HasAgent(id string) bool {
	_, ok := i.agents[id]
	return id != "" && ok
}

// ResolveAgent matches an agent by id first, then by role.
func (i TopologyIndex) ResolveAgent(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if i.HasAgent(ref) {
		return ref, true
	}
	id, ok := i.roles[strings.ToLower(ref)]
	return id, ok
}

// Task returns the task with the given id.
func (i TopologyIndex) Task(id string) (Task, bool) {
	t, ok := i.tasks[id]
	return t, ok
}

// Tool returns the tool instance with the given id.
func (i TopologyIndex) Tool(id string) (ToolInstance, bool) {
	t, ok := i.tools[id]
	return t, ok
}

// Mcp returns the MCP instance with the given id.
func (i TopologyIndex) Mcp(id string) (McpInstance, bool) {
	m, ok := i.mcps[id]
	return m, ok
}

// Manager returns the manager agent id when the crew is hierarchical and
// the manager is part of the topology.
func (i TopologyIndex) Manager() (string, bool) {
	if i.process != ProcessHierarchical || !i.HasAgent(i.managerID) {
		return "", false
	}
	return i.managerID, true
}
