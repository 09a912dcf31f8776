// Package tokens extracts encoding directives embedded in job names and file
// paths. A token is written either bracketed, "[h265]", or between
// underscores, "_h265_"; both forms are equivalent and case-insensitive.
package tokens

import (
	"regexp"
	"sort"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
)

// Category groups recognized tokens.
type Category string

const (
	CategoryTrigger   Category = "trigger"
	CategoryCodec     Category = "codec"
	CategoryFrameRate Category = "frame-rate"
	CategoryAudio     Category = "audio"
	CategoryVariant   Category = "variant"
)

// Token is one recognized directive and where it appeared.
type Token struct {
	Category Category
	Raw      string // Lower-cased token text, e.g. "prores422hq".
	Offset   int    // Byte offset in the parsed string.
}

// Set is the outcome of parsing one string. Zero fields mean "not given";
// later tokens overwrite earlier ones of the same kind.
type Set struct {
	Trigger       bool
	Codec         config.Codec
	FrameRate     media.Rate
	Audio         bool
	ProResProfile string
	HapVariant    string
	Tokens        []Token
}

// Any reports whether at least one token was recognized.
func (s Set) Any() bool { return len(s.Tokens) > 0 }

// Directive reports whether the set asks for an encode on its own: a
// trigger or a codec token.
func (s Set) Directive() bool { return s.Trigger || s.Codec != "" }

// Merge returns s overlaid with later: fields set in later win, flags are
// combined.
func (s Set) Merge(later Set) Set {
	out := s
	out.Trigger = s.Trigger || later.Trigger
	out.Audio = s.Audio || later.Audio
	if later.Codec != "" {
		out.Codec = later.Codec
	}
	if !later.FrameRate.IsZero() {
		out.FrameRate = later.FrameRate
	}
	if later.ProResProfile != "" {
		out.ProResProfile = later.ProResProfile
	}
	if later.HapVariant != "" {
		out.HapVariant = later.HapVariant
	}
	out.Tokens = append(append([]Token(nil), s.Tokens...), later.Tokens...)
	return out
}

// String lists the recognized tokens for logs, e.g. "[h265 30fps audio]".
func (s Set) String() string {
	raw := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		raw[i] = t.Raw
	}
	return "[" + strings.Join(raw, " ") + "]"
}

// rule pairs a compiled pattern with the update it applies. Rules are tried
// in order for each candidate word; first match wins.
type rule struct {
	Category Category
	Pattern  *regexp.Regexp
	Apply    func(s *Set, m []string) bool
}

var rules = []rule{
	{CategoryTrigger, regexp.MustCompile(`^(ffmpeg|autoencode)$`), func(s *Set, _ []string) bool {
		s.Trigger = true
		return true
	}},
	{CategoryVariant, regexp.MustCompile(`^prores(proxy|lt|422hq|422|4444xq|4444)$`), func(s *Set, m []string) bool {
		s.Codec = config.CodecProRes
		s.ProResProfile = m[1]
		return true
	}},
	{CategoryVariant, regexp.MustCompile(`^hap(alpha|q)$`), func(s *Set, m []string) bool {
		s.Codec = config.CodecHAP
		s.HapVariant = m[1]
		return true
	}},
	{CategoryCodec, regexp.MustCompile(`^(h265|hevc|x265|h264|avc|x264|prores|hap)$`), func(s *Set, m []string) bool {
		c, err := config.ParseCodec(m[1])
		if err != nil {
			return false
		}
		s.Codec = c
		return true
	}},
	{CategoryFrameRate, regexp.MustCompile(`^(\d+(?:\.\d+)?)fps$`), func(s *Set, m []string) bool {
		r, err := media.ParseRate(m[1])
		if err != nil {
			return false
		}
		s.FrameRate = r
		return true
	}},
	{CategoryAudio, regexp.MustCompile(`^audio$`), func(s *Set, _ []string) bool {
		s.Audio = true
		return true
	}},
}

var (
	bracketRe     = regexp.MustCompile(`\[([^\[\]]*)\]`)
	placeholderRe = regexp.MustCompile(`#+|%0?\d*d`)
	extensionRe   = regexp.MustCompile(`\.[A-Za-z][A-Za-z0-9]{0,4}$`)
)

type word struct {
	text   string
	offset int
}

// Parse scans s for tokens. Path separators split s into components and only
// the last component has its file extension removed. Frame placeholders never
// register as tokens. Unknown words are ignored.
func Parse(s string) Set {
	var words []word
	for _, c := range components(s) {
		words = append(words, scanComponent(c.text, c.offset, c.last)...)
	}
	sort.SliceStable(words, func(i, j int) bool { return words[i].offset < words[j].offset })

	var set Set
	for _, w := range words {
		lw := strings.ToLower(w.text)
		for _, r := range rules {
			m := r.Pattern.FindStringSubmatch(lw)
			if m == nil {
				continue
			}
			if r.Apply(&set, m) {
				set.Tokens = append(set.Tokens, Token{Category: r.Category, Raw: lw, Offset: w.offset})
			}
			break
		}
	}
	return set
}

type component struct {
	text   string
	offset int
	last   bool
}

func components(s string) []component {
	var out []component
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '/' && s[i] != '\\' {
			continue
		}
		if i > start {
			out = append(out, component{text: s[start:i], offset: start})
		}
		start = i + 1
	}
	if len(out) > 0 {
		out[len(out)-1].last = true
	}
	return out
}

// scanComponent returns bracketed words and underscore-delimited words. A
// piece counts as underscore-delimited when an underscore precedes it; it
// ends at the next underscore or the end of the component.
func scanComponent(text string, offset int, last bool) []word {
	if last {
		text = extensionRe.ReplaceAllString(text, "")
	}
	b := []byte(placeholderRe.ReplaceAllStringFunc(text, blank))

	var words []word
	for _, m := range bracketRe.FindAllSubmatchIndex(b, -1) {
		words = append(words, word{text: strings.TrimSpace(string(b[m[2]:m[3]])), offset: offset + m[0]})
		for i := m[0]; i < m[1]; i++ {
			b[i] = ' '
		}
	}

	pos := 0
	for i, piece := range strings.Split(string(b), "_") {
		if i > 0 {
			if t := strings.Trim(piece, " .-"); t != "" {
				words = append(words, word{text: t, offset: offset + pos + strings.Index(piece, t)})
			}
		}
		pos += len(piece) + 1
	}
	return words
}

func blank(s string) string { return strings.Repeat(" ", len(s)) }
