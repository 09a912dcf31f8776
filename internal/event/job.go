// Package event describes finished render jobs as the farm reports them and
// reads them from the render-completion topic.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/backmassage/autoencode/internal/graph"
)

// ErrInvalidJob is returned for a job description missing required fields.
var ErrInvalidJob = errors.New("invalid render job")

// Status values reported by the farm. Only completed jobs are compiled.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRunning   = "running"
)

// RenderJob is the description of one render job.
type RenderJob struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Plugin            string            `json:"plugin"`
	OutputDirectories []string          `json:"output_directories"`
	OutputFilenames   []string          `json:"output_filenames"`
	Frames            []int             `json:"frames"`
	Info              map[string]string `json:"info,omitempty"`
	PluginInfo        map[string]string `json:"plugin_info,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Scheduling        graph.Scheduling  `json:"scheduling"`
	Status            string            `json:"status,omitempty"`
}

// Decode parses a JSON job description.
func Decode(data []byte) (RenderJob, error) {
	var j RenderJob
	if err := json.Unmarshal(data, &j); err != nil {
		return RenderJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if j.ID == "" {
		return RenderJob{}, fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	return j, nil
}

// ReadFile decodes the job description at path.
func ReadFile(path string) (RenderJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RenderJob{}, err
	}
	return Decode(data)
}

// Completed reports whether the job finished successfully. An empty status
// counts as completed: events on the completion topic often omit it.
func (j RenderJob) Completed() bool {
	return j.Status == "" || strings.EqualFold(j.Status, StatusCompleted)
}

// FrameRange returns the first and last rendered frame.
func (j RenderJob) FrameRange() (first, last int, ok bool) {
	if len(j.Frames) == 0 {
		return 0, 0, false
	}
	return slices.Min(j.Frames), slices.Max(j.Frames), true
}

// FirstOutput returns the first output path, directory joined with file name.
func (j RenderJob) FirstOutput() (dir, file string, ok bool) {
	if len(j.OutputDirectories) == 0 || len(j.OutputFilenames) == 0 {
		return "", "", false
	}
	dir, file = j.OutputDirectories[0], j.OutputFilenames[0]
	if dir == "" || file == "" {
		return "", "", false
	}
	return dir, file, true
}

// InfoValues flattens the job into the info namespace used by path
// templates: the raw Info map plus Name, Plugin and OutputDirectoryN /
// OutputFilenameN entries.
func (j RenderJob) InfoValues() map[string]string {
	out := make(map[string]string, len(j.Info)+2+2*len(j.OutputDirectories))
	for k, v := range j.Info {
		out[k] = v
	}
	out["ID"] = j.ID
	out["Name"] = j.Name
	out["Plugin"] = j.Plugin
	for i, d := range j.OutputDirectories {
		out[fmt.Sprintf("OutputDirectory%d", i)] = d
	}
	for i, f := range j.OutputFilenames {
		out[fmt.Sprintf("OutputFilename%d", i)] = f
		if i < len(j.OutputDirectories) {
			out[fmt.Sprintf("OutputPath%d", i)] = filepath.Join(j.OutputDirectories[i], f)
		}
	}
	return out
}
