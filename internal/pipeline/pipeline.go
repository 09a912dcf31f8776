package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/autoencode/internal/compiler"
	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/display"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/farm"
	"github.com/backmassage/autoencode/internal/logging"
	"github.com/backmassage/autoencode/internal/manifest"
	"github.com/backmassage/autoencode/internal/scheduler"
)

// Pipeline handles render-completion events. Handle is not safe for
// concurrent use; the listener and the batch loop call it sequentially.
type Pipeline struct {
	Cfg  *config.Config
	Log  *logging.Logger
	Deps compiler.Deps

	// Store archives each compiled graph. Nil disables archiving.
	Store manifest.Store
	// Submitter publishes graphs to the farm. When nil and Runner is set,
	// graphs run locally; when both are nil Handle only compiles.
	Submitter scheduler.Submitter
	Runner    *farm.Runner
	// Out receives each compiled graph in Format. Nil prints nothing.
	Out    io.Writer
	Format Format

	Stats RunStats
	rows  []jobRow
}

// Handle compiles job and dispatches the graph. It returns an error only for
// failures worth redelivering the event for.
func (p *Pipeline) Handle(ctx context.Context, job event.RenderJob) error {
	log := p.Log
	res, err := compiler.Compile(ctx, job, p.Cfg, p.Deps)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Compile failed for %s: %v", job.Name, err)
		p.Stats.Failed++
		p.rows = append(p.rows, jobRow{Job: job.Name, Status: statusFailed})
		return nil
	}
	if res.Skipped {
		log.Info("Skip %s: %s", job.Name, res.Reason)
		p.Stats.Skipped++
		return nil
	}

	g := res.Graph
	p.Stats.Compiled++
	p.Stats.Nodes += len(g.Nodes)
	row := newJobRow(job.Name, res)
	log.Success("Compiled %s: %d node(s), %s %dx%d @ %s -> %s",
		job.Name, len(g.Nodes), res.Profile.Codec, res.Profile.Width, res.Profile.Height,
		res.Profile.FrameRate, filepath.Base(g.Output))
	if p.Out != nil {
		if err := p.writeGraph(job, res); err != nil {
			log.Warn("Cannot print graph %s: %v", g.ID, err)
		}
	}

	if p.Store != nil {
		where, err := p.Store.Put(ctx, manifest.FromResult(job, res))
		if err != nil {
			log.Warn("Archive failed for graph %s: %v", g.ID, err)
		} else {
			log.Debug("Archived manifest: %s", where)
		}
	}

	switch {
	case p.Submitter != nil:
		err := p.Submitter.Submit(ctx, g)
		if errors.Is(err, scheduler.ErrAlreadySubmitted) {
			log.Warn("Graph %s for %s was already submitted", g.ID, job.Name)
			p.Stats.Duplicates++
			row.Status = statusDuplicate
			p.rows = append(p.rows, row)
			return nil
		}
		if err != nil {
			return fmt.Errorf("submit graph %s: %w", g.ID, err)
		}
		p.Stats.Submitted++
		row.Status = statusSubmitted

	case p.Runner != nil:
		rep, err := p.Runner.Run(ctx, g)
		logReport(log, rep)
		if err != nil {
			p.Stats.Failed++
			row.Status = statusFailed
			p.rows = append(p.rows, row)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Graph %s failed: %v", g.ID, err)
			return nil
		}
		p.Stats.Ran++
		row.Status = statusDone
		if fi, err := os.Stat(g.Output); err == nil {
			log.Success("Wrote %s (%s)", filepath.Base(g.Output), display.FormatBytes(fi.Size()))
		}
	}
	p.rows = append(p.rows, row)
	return nil
}

// RunFiles handles each job file in order and prints a summary. Unreadable
// files count as failures.
func (p *Pipeline) RunFiles(ctx context.Context, files []string) RunStats {
	p.Stats.Total = len(files)
	for i, path := range files {
		p.Stats.Current = i + 1
		if ctx.Err() != nil {
			p.Log.Warn("Interrupted")
			break
		}
		p.Log.Info("[%d/%d] %s", p.Stats.Current, p.Stats.Total, filepath.Base(path))

		job, err := event.ReadFile(path)
		if err != nil {
			p.Log.Error("Cannot read job: %v", err)
			p.Stats.Failed++
			continue
		}
		if err := p.Handle(ctx, job); err != nil {
			p.Log.Error("%v", err)
			p.Stats.Failed++
		}
	}
	if p.Out != nil && p.Format == FormatText && len(p.rows) > 1 {
		printJobTable(p.Out, p.rows)
	}
	p.logSummary()
	return p.Stats
}

func (p *Pipeline) logSummary() {
	s := &p.Stats
	p.Log.Info("==============================")
	p.Log.Info("Done: %d compiled, %d skipped, %d failed", s.Compiled, s.Skipped, s.Failed)
	if s.Compiled > 0 {
		p.Log.Info("  Nodes: %d", s.Nodes)
	}
	if s.Submitted+s.Duplicates > 0 {
		p.Log.Info("  Submitted: %d (%d duplicate)", s.Submitted, s.Duplicates)
	}
	if s.Ran > 0 {
		p.Log.Success("  Ran locally: %d", s.Ran)
	}
}

func logReport(log *logging.Logger, rep farm.Report) {
	for _, n := range rep.Nodes {
		switch n.State {
		case farm.StateDone:
			log.Debug("  %s done in %s", n.Name, display.FormatDuration(n.Elapsed))
		case farm.StateFailed:
			log.Error("  %s failed (%s) after %d attempt(s)", n.Name, n.Failure, n.Attempts)
			for _, l := range strings.Split(n.Stderr, "\n") {
				if l != "" {
					log.Error("    %s", l)
				}
			}
		case farm.StateSkipped:
			log.Warn("  %s skipped", n.Name)
		}
	}
	if len(rep.Cleaned) > 0 {
		log.Debug("  Removed %d intermediate file(s)", len(rep.Cleaned))
	}
}
