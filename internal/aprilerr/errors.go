// Package aprilerr defines the error taxonomy shared across the engine.
package aprilerr

import "errors"

// Kind classifies a failure the way the runtime's callers need to react to it.
type Kind int

const (
	// KindConfig covers caller mistakes: missing handler, mutually exclusive flags.
	KindConfig Kind = iota
	// KindModelLoad covers a model file that is missing, malformed, or mismatched.
	KindModelLoad
	// KindBackend covers a tensor-compute failure from the backend.
	KindBackend
	// KindInvariant covers an internal assertion failure. Always fatal.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindModelLoad:
		return "model_load"
	case KindBackend:
		return "backend"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a typed, wrapped error carrying a Kind for caller dispatch.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Op
	}
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Invariant panics with a KindInvariant error. Invariant violations are
// programmer errors, not recoverable runtime conditions, matching the
// teacher's sparing use of hard assertions for shape/buffer mismatches.
func Invariant(op string, cond bool, detail string) {
	if !cond {
		panic(New(KindInvariant, op, errors.New(detail)))
	}
}
