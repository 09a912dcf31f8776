// Package chunk partitions a frame range into contiguous work units. The
// partition is a pure function of the range, chunk size and minimum chunk
// count, so a recompiled job always gets the same boundaries.
package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRange is returned for a range with no frames.
	ErrEmptyRange = errors.New("empty frame range")
	// ErrInvalidChunkSize is returned for a non-positive chunk size or
	// minimum chunk count.
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// Chunk is one contiguous, inclusive frame range. Index is 1-based.
// OutputPath is empty from Plan; the graph builder assigns it.
type Chunk struct {
	Index      int    `json:"index" yaml:"index"`
	Start      int    `json:"start" yaml:"start"`
	End        int    `json:"end" yaml:"end"`
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Frames returns the number of frames in the chunk.
func (c Chunk) Frames() int { return c.End - c.Start + 1 }

func (c Chunk) String() string { return fmt.Sprintf("#%d [%d-%d]", c.Index, c.Start, c.End) }

// Plan splits [first, last] into chunks of size frames. The range is only
// split when it yields at least minChunks full chunks' worth of frames
// (count >= size*minChunks); otherwise one chunk covers it. The last chunk
// takes the remainder and is never empty.
func Plan(first, last, size, minChunks int) ([]Chunk, error) {
	if last < first {
		return nil, fmt.Errorf("%w: %d-%d", ErrEmptyRange, first, last)
	}
	if size <= 0 || minChunks < 1 {
		return nil, fmt.Errorf("%w: size %d, min chunks %d", ErrInvalidChunkSize, size, minChunks)
	}

	count := last - first + 1
	if count < size*minChunks {
		return []Chunk{{Index: 1, Start: first, End: last}}, nil
	}

	n := (count + size - 1) / size
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := first + i*size
		end := min(start+size-1, last)
		chunks = append(chunks, Chunk{Index: i + 1, Start: start, End: end})
	}
	return chunks, nil
}

// Single returns the whole range as one chunk.
func Single(first, last int) ([]Chunk, error) {
	if last < first {
		return nil, fmt.Errorf("%w: %d-%d", ErrEmptyRange, first, last)
	}
	return []Chunk{{Index: 1, Start: first, End: last}}, nil
}
