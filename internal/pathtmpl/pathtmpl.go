// Package pathtmpl expands placeholders such as <info.OutputDirectory0> or
// <plugin.OutputFile.basename> in path templates. A placeholder that cannot
// be resolved is an error; nothing is ever left in the output.
package pathtmpl

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnresolved is returned for an unknown namespace or operation, or a
	// key with no (or an empty) value.
	ErrUnresolved = errors.New("unresolved placeholder")
	// ErrDelimiter is returned for a delimiter that is not one or two
	// characters, or for an unterminated placeholder.
	ErrDelimiter = errors.New("invalid placeholder delimiter")
)

// Namespaces understood by Expand.
const (
	NSInfo    = "info"    // render job info
	NSPlugin  = "plugin"  // render plugin info
	NSMeta    = "meta"    // per-job metadata
	NSProfile = "profile" // encoding profile: codec, ext, width, height, fps
)

// Lookup returns the values of one namespace.
type Lookup map[string]map[string]string

// Delimiters opens and closes a placeholder.
type Delimiters struct {
	Open, Close string
}

// ParseDelimiters accepts "<>" style pairs and single characters used on
// both sides ("%" gives %info.Name%). Whitespace is ignored.
func ParseDelimiters(s string) (Delimiters, error) {
	r := []rune(strings.ReplaceAll(s, " ", ""))
	switch len(r) {
	case 1:
		return Delimiters{Open: string(r[0]), Close: string(r[0])}, nil
	case 2:
		return Delimiters{Open: string(r[0]), Close: string(r[1])}, nil
	}
	return Delimiters{}, fmt.Errorf("%w %q: use one or two characters", ErrDelimiter, s)
}

// Ops are the operations applicable as a third path element.
var Ops = map[string]func(string) string{
	"basename":  basename,
	"extension": extension,
}

// basename strips the directory and extension, then any trailing frame
// padding and dots (shot_####.exr -> shot_).
func basename(s string) string {
	b := filepath.Base(s)
	b = strings.TrimSuffix(b, filepath.Ext(b))
	return strings.TrimRight(strings.TrimRight(b, "#"), ".")
}

// extension returns the suffix including the dot.
func extension(s string) string { return filepath.Ext(filepath.Base(s)) }

// Expand replaces every placeholder in tmpl. Keys are matched exactly first,
// then case-insensitively.
func Expand(tmpl string, d Delimiters, lookup Lookup) (string, error) {
	if d.Open == "" || d.Close == "" {
		return "", fmt.Errorf("%w: empty delimiter", ErrDelimiter)
	}
	var b strings.Builder
	rest := tmpl
	for {
		i := strings.Index(rest, d.Open)
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])
		rest = rest[i+len(d.Open):]
		j := strings.Index(rest, d.Close)
		if j < 0 {
			return "", fmt.Errorf("%w: unterminated placeholder in %q", ErrDelimiter, tmpl)
		}
		expr := rest[:j]
		rest = rest[j+len(d.Close):]

		v, err := resolve(expr, lookup)
		if err != nil {
			return "", fmt.Errorf("%w %s%s%s: %v", ErrUnresolved, d.Open, expr, d.Close, err)
		}
		b.WriteString(v)
	}
}

// resolve evaluates ns.key or ns.key.op. Keys may themselves contain dots
// (meta.AutoEncode.Codec); a trailing element is an operation only when it
// names one.
func resolve(expr string, lookup Lookup) (string, error) {
	parts := strings.Split(expr, ".")
	if len(parts) < 2 {
		return "", errors.New("want namespace.key or namespace.key.operation")
	}
	var op func(string) string
	opName := ""
	if len(parts) > 2 {
		if f, ok := Ops[strings.ToLower(parts[len(parts)-1])]; ok {
			op, opName = f, parts[len(parts)-1]
			parts = parts[:len(parts)-1]
		}
	}
	ns, key := strings.ToLower(parts[0]), strings.Join(parts[1:], ".")
	values, ok := lookup[ns]
	if !ok {
		return "", fmt.Errorf("unknown namespace %q", parts[0])
	}
	v, ok := values[key]
	if !ok {
		for k, kv := range values {
			if strings.EqualFold(k, key) {
				v, ok = kv, true
				break
			}
		}
	}
	if !ok || v == "" {
		return "", fmt.Errorf("no value for %q", key)
	}
	if op != nil {
		v = op(v)
		if v == "" {
			return "", fmt.Errorf("%s of %q is empty", opName, key)
		}
	}
	return v, nil
}
