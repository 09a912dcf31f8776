// Package graph builds the job graph submitted to the render farm for one
// finished render: an encode node per chunk and, when there is more than one
// chunk, a terminal concat node that stream-copies them together and owns the
// cleanup of intermediate files.
package graph

import (
	"errors"
	"fmt"
)

// Kind distinguishes work nodes from the joining node.
type Kind string

const (
	KindEncode Kind = "encode"
	KindConcat Kind = "concat"
)

// Layout is how the farm receives the nodes of a graph.
type Layout string

const (
	// LayoutJobs submits every node as its own farm job.
	LayoutJobs Layout = "jobs"
	// LayoutTasks submits one farm job whose tasks are the nodes: task i
	// encodes chunk i+1 and the last task is the terminal.
	LayoutTasks Layout = "tasks"
)

// ErrInvalidGraph is returned by Validate.
var ErrInvalidGraph = errors.New("invalid job graph")

// Scheduling holds the farm attributes inherited from the render job.
type Scheduling struct {
	Priority      int      `json:"priority" yaml:"priority"`
	Pool          string   `json:"pool,omitempty" yaml:"pool,omitempty"`
	SecondaryPool string   `json:"secondary_pool,omitempty" yaml:"secondary_pool,omitempty"`
	Group         string   `json:"group,omitempty" yaml:"group,omitempty"`
	AllowList     []string `json:"allow_list,omitempty" yaml:"allow_list,omitempty"`
	DenyList      []string `json:"deny_list,omitempty" yaml:"deny_list,omitempty"`
}

// Command is one process invocation. Args excludes the executable.
type Command struct {
	Executable string   `json:"executable" yaml:"executable"`
	Args       []string `json:"args" yaml:"args"`
	WorkDir    string   `json:"work_dir" yaml:"work_dir"`
}

// File is an artifact the submitter writes before the node runs, such as the
// concat list.
type File struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// CleanupAction runs only after its node reports success.
type CleanupAction struct {
	Delete string `json:"delete" yaml:"delete"`
}

// JobNode is one schedulable unit.
type JobNode struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Kind       Kind            `json:"kind" yaml:"kind"`
	ChunkIndex int             `json:"chunk_index,omitempty" yaml:"chunk_index,omitempty"`
	Task       int             `json:"task" yaml:"task"`
	StartFrame int             `json:"start_frame" yaml:"start_frame"`
	EndFrame   int             `json:"end_frame" yaml:"end_frame"`
	Inputs     []string        `json:"inputs" yaml:"inputs"`
	Outputs    []string        `json:"outputs" yaml:"outputs"`
	DependsOn  []string        `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Command    Command         `json:"command" yaml:"command"`
	Files      []File          `json:"files,omitempty" yaml:"files,omitempty"`
	Cleanup    []CleanupAction `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	Scheduling Scheduling      `json:"scheduling" yaml:"scheduling"`
}

// JobGraph is every node compiled from one render-completion event. Nodes
// are in chunk order with the terminal node last.
type JobGraph struct {
	ID            string `json:"id" yaml:"id"`
	SourceJobID   string `json:"source_job_id" yaml:"source_job_id"`
	Name          string `json:"name" yaml:"name"`
	Output        string `json:"output" yaml:"output"`
	TerminalID    string `json:"terminal_id" yaml:"terminal_id"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
	Layout        Layout `json:"layout" yaml:"layout"`
	// TaskJob names the single farm job of a LayoutTasks graph.
	TaskJob string    `json:"task_job,omitempty" yaml:"task_job,omitempty"`
	Nodes   []JobNode `json:"nodes" yaml:"nodes"`
}

// FarmJob returns the farm job n belongs to: its own name, or the shared
// task job when the graph is laid out as tasks.
func (g *JobGraph) FarmJob(n *JobNode) string {
	if g.Layout == LayoutTasks {
		return g.TaskJob
	}
	return n.Name
}

// Node returns the node with id.
func (g *JobGraph) Node(id string) (*JobNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Terminal returns the terminal node.
func (g *JobGraph) Terminal() *JobNode {
	n, _ := g.Node(g.TerminalID)
	return n
}

// Intermediates returns every file written by non-terminal nodes.
func (g *JobGraph) Intermediates() []string {
	var out []string
	for _, n := range g.Nodes {
		if n.ID != g.TerminalID {
			out = append(out, n.Outputs...)
		}
	}
	return out
}

// Validate checks the structural invariants: unique ids, dependencies that
// exist, exactly one terminal node (the one nothing depends on), no cycles,
// and every node reaching the terminal.
func (g *JobGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidGraph)
	}
	if g.Layout == LayoutTasks {
		if g.TaskJob == "" {
			return fmt.Errorf("%w: task layout without a task job", ErrInvalidGraph)
		}
		for i, n := range g.Nodes {
			if n.Task != i {
				return fmt.Errorf("%w: node %s is task %d, want %d", ErrInvalidGraph, n.Name, n.Task, i)
			}
		}
	}
	byID := make(map[string]*JobNode, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidGraph, n.ID)
		}
		byID[n.ID] = n
	}

	dependedOn := make(map[string]bool)
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: node %s depends on unknown %s", ErrInvalidGraph, n.Name, dep)
			}
			dependedOn[dep] = true
		}
	}
	var terminals []string
	for _, n := range g.Nodes {
		if !dependedOn[n.ID] {
			terminals = append(terminals, n.ID)
		}
	}
	if len(terminals) != 1 {
		return fmt.Errorf("%w: %d terminal nodes, want 1", ErrInvalidGraph, len(terminals))
	}
	if terminals[0] != g.TerminalID {
		return fmt.Errorf("%w: terminal is %s, graph names %s", ErrInvalidGraph, terminals[0], g.TerminalID)
	}
	if _, err := g.TopoOrder(); err != nil {
		return err
	}

	// Walk dependency edges backwards from the terminal.
	reached := map[string]bool{g.TerminalID: true}
	stack := []string{g.TerminalID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range byID[id].DependsOn {
			if !reached[dep] {
				reached[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	for _, n := range g.Nodes {
		if !reached[n.ID] {
			return fmt.Errorf("%w: node %s does not lead to the terminal", ErrInvalidGraph, n.Name)
		}
	}
	return nil
}

// TopoOrder returns the nodes so that every node follows its dependencies,
// keeping declaration order among independent nodes.
func (g *JobGraph) TopoOrder() ([]*JobNode, error) {
	indeg := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string)
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			indeg[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var order []*JobNode
	done := make(map[string]bool)
	for len(order) < len(g.Nodes) {
		progressed := false
		for i := range g.Nodes {
			n := &g.Nodes[i]
			if done[n.ID] || indeg[n.ID] > 0 {
				continue
			}
			done[n.ID] = true
			order = append(order, n)
			progressed = true
			for _, d := range dependents[n.ID] {
				indeg[d]--
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w: dependency cycle", ErrInvalidGraph)
		}
	}
	return order, nil
}
