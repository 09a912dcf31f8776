// Package farm executes a compiled job graph on the local machine. It is a
// stand-in for the render farm: a node starts only after every dependency
// succeeded, at most MaxConcurrent nodes run at once, and the terminal
// node's cleanup runs only after the terminal itself succeeded.
package farm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/logging"
	"github.com/backmassage/autoencode/internal/scheduler"
)

// ErrNodeFailed is returned by Run when any node failed.
var ErrNodeFailed = errors.New("node failed")

// State of a node after Run.
type State string

const (
	StateDone    State = "done"
	StateFailed  State = "failed"
	StateSkipped State = "skipped" // A dependency failed or the run was cancelled.
)

// NodeResult is the outcome of one node.
type NodeResult struct {
	ID       string
	Name     string
	State    State
	Attempts int
	Failure  Failure
	Stderr   string
	Elapsed  time.Duration
}

// Report is the outcome of a graph run, in graph node order.
type Report struct {
	Nodes   []NodeResult
	Cleaned []string
}

// StatusSink receives node state changes. scheduler.Ledger satisfies it.
type StatusSink interface {
	SetStatus(ctx context.Context, graphID, nodeID, status string) error
}

// Runner runs graphs.
type Runner struct {
	Exec Executor
	Log  *logging.Logger
	// MaxAttempts bounds runs of a node whose failure is retryable.
	MaxAttempts int
	// RetryDelay separates retryable attempts.
	RetryDelay time.Duration
	Status     StatusSink
}

// NewRunner returns a Runner with three attempts per retryable node.
func NewRunner(exec Executor, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{Exec: exec, Log: log, MaxAttempts: 3, RetryDelay: 2 * time.Second}
}

type nodeState struct {
	done chan struct{}
	ok   bool
}

// Run executes g. A failed node skips only the nodes that depend on it,
// directly or transitively; independent nodes still run and keep their
// outputs. Run returns the report and ErrNodeFailed when any node failed.
func (r *Runner) Run(ctx context.Context, g *graph.JobGraph) (Report, error) {
	if err := g.Validate(); err != nil {
		return Report{}, err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return Report{}, err
	}

	states := make(map[string]*nodeState, len(order))
	for _, n := range order {
		states[n.ID] = &nodeState{done: make(chan struct{})}
	}
	var mu sync.Mutex
	results := make(map[string]NodeResult, len(order))
	var cleaned []string
	var failed []error

	var eg errgroup.Group
	eg.SetLimit(max(g.MaxConcurrent, 1))

	// Nodes are started in topological order, so every dependency already
	// holds a slot before a dependent waits on it.
	for _, n := range order {
		st := states[n.ID]
		eg.Go(func() error {
			defer close(st.done)
			if !r.waitDeps(ctx, n, states) {
				mu.Lock()
				results[n.ID] = NodeResult{ID: n.ID, Name: n.Name, State: StateSkipped}
				mu.Unlock()
				r.status(ctx, g.ID, n.ID, scheduler.StatusFailed)
				return nil
			}

			res := r.runNode(ctx, g.ID, n)
			mu.Lock()
			results[n.ID] = res
			if res.State != StateDone {
				failed = append(failed, fmt.Errorf("%w: %s", ErrNodeFailed, n.Name))
				mu.Unlock()
				return nil
			}
			mu.Unlock()
			st.ok = true

			if n.ID == g.TerminalID {
				removed := r.cleanup(n)
				mu.Lock()
				cleaned = removed
				mu.Unlock()
			}
			return nil
		})
	}
	// Node failures are collected above; the goroutines never return one.
	_ = eg.Wait()

	rep := Report{Cleaned: cleaned}
	for _, n := range g.Nodes {
		res, ok := results[n.ID]
		if !ok {
			res = NodeResult{ID: n.ID, Name: n.Name, State: StateSkipped}
		}
		rep.Nodes = append(rep.Nodes, res)
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, errors.Join(failed...)
}

// waitDeps blocks until every dependency of n finished and reports whether
// all of them succeeded.
func (r *Runner) waitDeps(ctx context.Context, n *graph.JobNode, states map[string]*nodeState) bool {
	for _, dep := range n.DependsOn {
		ds := states[dep]
		select {
		case <-ds.done:
			if !ds.ok {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

// runNode materializes the node's files and runs its command, retrying
// retryable failures.
func (r *Runner) runNode(ctx context.Context, graphID string, n *graph.JobNode) NodeResult {
	res := NodeResult{ID: n.ID, Name: n.Name}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	if err := writeFiles(n.Files); err != nil {
		res.State, res.Failure, res.Stderr = StateFailed, FailureOther, err.Error()
		r.Log.Error("%s: %v", n.Name, err)
		r.status(ctx, graphID, n.ID, scheduler.StatusFailed)
		return res
	}

	r.status(ctx, graphID, n.ID, scheduler.StatusRunning)
	r.Log.Info("Running %s", n.Name)
	for {
		res.Attempts++
		out := r.Exec.Execute(ctx, n.Command)
		if out.Err == nil {
			res.State = StateDone
			r.Log.Success("%s finished", n.Name)
			r.status(ctx, graphID, n.ID, scheduler.StatusDone)
			return res
		}
		res.Stderr = tail(out.Stderr, 20)
		res.Failure = Classify(out.Stderr)
		if ctx.Err() != nil || !res.Failure.Retryable() || res.Attempts >= max(r.MaxAttempts, 1) {
			break
		}
		r.Log.Warn("%s: %s, retrying (attempt %d)", n.Name, res.Failure, res.Attempts+1)
		if !sleep(ctx, r.RetryDelay) {
			break
		}
	}
	res.State = StateFailed
	r.Log.Error("%s failed (%s): %s", n.Name, res.Failure, res.Stderr)
	r.status(ctx, graphID, n.ID, scheduler.StatusFailed)
	return res
}

// cleanup deletes the terminal's intermediates. Missing files are ignored.
func (r *Runner) cleanup(n *graph.JobNode) []string {
	var removed []string
	for _, c := range n.Cleanup {
		if c.Delete == "" {
			continue
		}
		if err := os.Remove(c.Delete); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.Log.Warn("Cannot remove %s: %v", c.Delete, err)
			continue
		}
		removed = append(removed, c.Delete)
	}
	if len(removed) > 0 {
		r.Log.Debug("removed %d intermediate file(s)", len(removed))
	}
	return removed
}

func (r *Runner) status(ctx context.Context, graphID, nodeID, status string) {
	if r.Status == nil {
		return
	}
	// Status is advisory; a cancelled run still records its outcome.
	if err := r.Status.SetStatus(context.WithoutCancel(ctx), graphID, nodeID, status); err != nil {
		r.Log.Warn("Cannot record status of %s: %v", nodeID, err)
	}
}

func writeFiles(files []graph.File) error {
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(f.Path, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
