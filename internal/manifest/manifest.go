// Package manifest archives compiled job graphs as YAML documents, either in
// a local directory or in an S3-compatible bucket.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/autoencode/internal/compiler"
	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/profile"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("manifest not found")

// Manifest is the archived record of one compile.
type Manifest struct {
	JobID      string                   `yaml:"job_id"`
	JobName    string                   `yaml:"job_name"`
	Source     string                   `yaml:"source"`
	FirstFrame int                      `yaml:"first_frame"`
	LastFrame  int                      `yaml:"last_frame"`
	AudioPath  string                   `yaml:"audio_path,omitempty"`
	Properties media.VideoProperties    `yaml:"properties"`
	Profile    *profile.EncodingProfile `yaml:"profile"`
	Graph      *graph.JobGraph          `yaml:"graph"`
}

// FromResult builds the manifest of a successful compile.
func FromResult(job event.RenderJob, res *compiler.Result) *Manifest {
	return &Manifest{
		JobID:      job.ID,
		JobName:    job.Name,
		Source:     res.Sequence.Pattern,
		FirstFrame: res.Sequence.First,
		LastFrame:  res.Sequence.Last,
		AudioPath:  res.AudioPath,
		Properties: res.Properties,
		Profile:    res.Profile,
		Graph:      res.Graph,
	}
}

// Key is the object name a manifest is stored under.
func (m *Manifest) Key() string { return m.Graph.ID + ".yaml" }

// Encode writes m as YAML.
func Encode(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

// Decode reads a YAML manifest.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Graph == nil {
		return nil, errors.New("decode manifest: no graph")
	}
	return &m, nil
}

func marshal(m *Manifest) ([]byte, error) {
	if m.Graph == nil {
		return nil, errors.New("manifest has no graph")
	}
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Store persists manifests.
type Store interface {
	// Put stores m and returns where it went.
	Put(ctx context.Context, m *Manifest) (string, error)
	Get(ctx context.Context, key string) (*Manifest, error)
}

// Open returns the store configured by cfg, or nil when archiving is
// disabled.
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "fs":
		return NewFSStore(cfg.Dir)
	case "minio":
		return NewMinIOStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}
