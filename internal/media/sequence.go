package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoFramePlaceholder is returned when an image path carries neither a
// padding placeholder nor a frame number.
var ErrNoFramePlaceholder = errors.New("no frame placeholder in sequence path")

// Kind distinguishes numbered image sequences from single movie files.
type Kind int

const (
	KindImageSequence Kind = iota
	KindMovie
)

func (k Kind) String() string {
	if k == KindMovie {
		return "movie"
	}
	return "image-sequence"
}

// movieExtensions are containers that hold a whole clip in one file.
var movieExtensions = map[string]bool{
	".mov": true, ".mp4": true, ".m4v": true, ".mxf": true,
	".mkv": true, ".avi": true, ".webm": true,
}

var (
	hashRe   = regexp.MustCompile(`#+`)
	printfRe = regexp.MustCompile(`%0?(\d*)d`)
	// Trailing frame number on a concrete file name: name.1001.exr, name_0001.png.
	frameNumRe = regexp.MustCompile(`^(.*?[._-])(\d{2,})$`)
)

// Sequence is the rendered source: a numbered image sequence described by a
// padding pattern, or a single movie file. Immutable after construction.
type Sequence struct {
	// Pattern is the path with its frame placeholder normalized to '#'
	// padding (e.g. /renders/shot_#####.exr). Movies keep their plain path.
	Pattern string `json:"pattern" yaml:"pattern"`
	First   int    `json:"first" yaml:"first"`
	Last    int    `json:"last" yaml:"last"`
	Padding int    `json:"padding" yaml:"padding"`
	Kind    Kind   `json:"kind" yaml:"kind"`
}

// NewSequence parses path into a Sequence over [first, last]. Accepted
// placeholders are '#' runs, printf padding (%04d, %d) and, for a concrete
// frame file such as shot.1001.exr, the trailing frame number.
func NewSequence(path string, first, last int) (Sequence, error) {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	if movieExtensions[strings.ToLower(ext)] && !hashRe.MatchString(stem) && !printfRe.MatchString(stem) {
		return Sequence{Pattern: path, First: first, Last: last, Kind: KindMovie}, nil
	}

	var pattern string
	var padding int
	switch {
	case hashRe.MatchString(stem):
		locs := hashRe.FindAllStringIndex(stem, -1)
		run := locs[len(locs)-1]
		padding = run[1] - run[0]
		pattern = stem
	case printfRe.MatchString(stem):
		locs := printfRe.FindAllStringSubmatchIndex(stem, -1)
		m := locs[len(locs)-1]
		padding = 1
		if m[2] != m[3] {
			n, err := strconv.Atoi(stem[m[2]:m[3]])
			if err == nil && n > 0 {
				padding = n
			}
		}
		pattern = stem[:m[0]] + strings.Repeat("#", padding) + stem[m[1]:]
	case frameNumRe.MatchString(stem):
		m := frameNumRe.FindStringSubmatch(stem)
		padding = len(m[2])
		pattern = m[1] + strings.Repeat("#", padding)
	default:
		return Sequence{}, fmt.Errorf("%w: %s", ErrNoFramePlaceholder, path)
	}

	return Sequence{
		Pattern: dir + pattern + ext,
		First:   first,
		Last:    last,
		Padding: padding,
		Kind:    KindImageSequence,
	}, nil
}

// Count returns the number of frames in the range (0 when empty).
func (s Sequence) Count() int {
	if s.Last < s.First {
		return 0
	}
	return s.Last - s.First + 1
}

// IsMovie reports whether the source is a single container file.
func (s Sequence) IsMovie() bool { return s.Kind == KindMovie }

// Dir is the directory containing the frames.
func (s Sequence) Dir() string { return filepath.Dir(s.Pattern) }

// Ext is the file extension including the dot, e.g. ".exr".
func (s Sequence) Ext() string { return filepath.Ext(s.Pattern) }

// Base is the file name without placeholder, extension or trailing
// separators: /r/shot_v2.####.exr gives "shot_v2".
func (s Sequence) Base() string {
	base := strings.TrimSuffix(filepath.Base(s.Pattern), s.Ext())
	if s.Kind == KindImageSequence {
		base = s.replaceLast(base, "")
	}
	return strings.TrimRight(base, "._- ")
}

// FramePath returns the concrete file name of frame n.
func (s Sequence) FramePath(n int) string {
	if s.Kind == KindMovie {
		return s.Pattern
	}
	return s.replaceLast(s.Pattern, fmt.Sprintf("%0*d", s.Padding, n))
}

// PrintfPattern returns the pattern in ffmpeg image2 form (##### becomes %05d).
func (s Sequence) PrintfPattern() string {
	if s.Kind == KindMovie {
		return s.Pattern
	}
	return s.replaceLast(s.Pattern, fmt.Sprintf("%%0%dd", s.Padding))
}

// Wildcard returns a filepath.Glob pattern matching every frame file. Glob
// metacharacters in the rest of the path are escaped.
func (s Sequence) Wildcard() string {
	if s.Kind == KindMovie {
		return escapeGlob(s.Pattern)
	}
	loc := lastHashRun(s.Pattern)
	return escapeGlob(s.Pattern[:loc[0]]) + strings.Repeat("[0-9]", s.Padding) + "*" + escapeGlob(s.Pattern[loc[1]:])
}

// replaceLast substitutes the last '#' run in str.
func (s Sequence) replaceLast(str, with string) string {
	loc := lastHashRun(str)
	if loc == nil {
		return str
	}
	return str[:loc[0]] + with + str[loc[1]:]
}

func lastHashRun(str string) []int {
	locs := hashRe.FindAllStringIndex(str, -1)
	if len(locs) == 0 {
		return nil
	}
	return locs[len(locs)-1]
}

func escapeGlob(p string) string {
	r := strings.NewReplacer(`[`, `[[]`, `*`, `[*]`, `?`, `[?]`)
	return r.Replace(p)
}
