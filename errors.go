package keyedarchive

import (
	"fmt"
	"strconv"

	"github.com/appsworld/keyedarchive/cf"
)

// ErrorKind classifies every error this package surfaces. The taxonomy is
// flat; nothing is swallowed or silently coerced.
type ErrorKind int

const (
	// IO is an underlying read or open failure.
	IO ErrorKind = iota + 1

	// UnknownFormat means the document head matched neither bplist00 nor XML.
	UnknownFormat

	// MalformedFormat is a well-formedness violation in either encoding.
	MalformedFormat

	// InvalidArchive means the keyed-archive envelope is missing a required
	// key or carries one of the wrong type.
	InvalidArchive

	// MalformedNode means a node inside the archive violates archive shape.
	MalformedNode

	// RecursionLimit means UID resolution exceeded the depth bound.
	RecursionLimit
)

func (k ErrorKind) String() string {
	switch k {
	case IO:
		return "I/O error"
	case UnknownFormat:
		return "unknown format"
	case MalformedFormat:
		return "malformed property list"
	case InvalidArchive:
		return "invalid keyed archive"
	case MalformedNode:
		return "malformed archive node"
	case RecursionLimit:
		return "recursion limit exceeded"
	}
	return "unknown error"
}

// Error is the error type for everything outside the cf accessors.
type Error struct {
	Kind   ErrorKind
	Format string // parse errors: "binary" or "XML"

	// MalformedNode: the offending key and node.
	Key  string
	Node cf.Value

	// RecursionLimit: the depth reached and the partial tree produced so far.
	Depth   int
	Partial cf.Value

	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Format != "" {
		msg = e.Format + ": " + msg
	}
	if e.Key != "" {
		msg += " (key " + strconv.Quote(e.Key) + ")"
	}
	if e.Kind == RecursionLimit {
		msg += " at depth " + strconv.Itoa(e.Depth)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// parseError panics are recovered at each parser's document boundary and
// wrapped as MalformedFormat for the named encoding.
func malformed(format string, e error) *Error {
	return &Error{Kind: MalformedFormat, Format: format, Err: e}
}

func malformedf(format, f string, args ...interface{}) *Error {
	return malformed(format, fmt.Errorf(f, args...))
}
