package fetch

// SourceCache tags outcomes served from the cache
const SourceCache = "cache"

// Outcome is either a value with the source that produced it, or an
// Error. Never both.
type Outcome[T any] struct {
	Value  T
	Source string
	Err    *Error
}

// Success builds a successful outcome
func Success[T any](v T, source string) Outcome[T] {
	return Outcome[T]{Value: v, Source: source}
}

// Failure builds a failed outcome
func Failure[T any](err *Error) Outcome[T] {
	return Outcome[T]{Err: err}
}

// OK reports whether the outcome carries a value
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Kind returns the failure kind, or "" on success
func (o Outcome[T]) Kind() Kind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}
