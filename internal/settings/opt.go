package settings

// opt is a value that may be absent, tagged with the layer that supplied it.
type opt[T any] struct {
	v   T
	src Source
	ok  bool
}

func some[T any](v T, src Source) opt[T] { return opt[T]{v: v, src: src, ok: true} }

// tokenOpt is some(v, SourceToken) when present, else absent.
func tokenOpt[T any](v T, present bool) opt[T] {
	if !present {
		return opt[T]{}
	}
	return some(v, SourceToken)
}

// pick returns the first present option in precedence order. With nothing
// present it returns the zero value and an empty Source.
func pick[T any](opts ...opt[T]) (T, Source) {
	for _, o := range opts {
		if o.ok {
			return o.v, o.src
		}
	}
	var zero T
	return zero, ""
}
