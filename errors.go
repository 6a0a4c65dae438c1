package nativetcl

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind categorizes an [Error].
type Kind string

const (
	// KindNullPointer: a foreign pointer that must never be null was null.
	KindNullPointer Kind = "null_pointer"
	// KindNulBytes: a caller-supplied string contained a NUL byte.
	KindNulBytes Kind = "nul_bytes"
	// KindInvalidUTF8: a string crossing the boundary was not valid UTF-8.
	KindInvalidUTF8 Kind = "invalid_utf8"
	// KindInternal: Tcl itself reported a failure.
	KindInternal Kind = "internal"
)

// Error is the error type returned by every fallible operation.
type Error struct {
	Kind Kind

	// Value is the offending caller string for KindNulBytes and
	// KindInvalidUTF8 input errors.
	Value string

	// Completion is the completion code Tcl reported, for KindInternal.
	Completion Completion

	// Detail is extra context such as "interpreter is closed".
	Detail string

	// Cause is set when reading the diagnostic text of a KindInternal error
	// itself failed.
	Cause error
}

// Sentinels for use with errors.Is. Matching is by Kind only.
var (
	ErrNullPointer = &Error{Kind: KindNullPointer}
	ErrNulBytes    = &Error{Kind: KindNulBytes}
	ErrInvalidUTF8 = &Error{Kind: KindInvalidUTF8}
	ErrInternal    = &Error{Kind: KindInternal}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("tcl: ")

	switch e.Kind {
	case KindNullPointer:
		b.WriteString("a pointer was NULL when it shouldn't have been")
	case KindNulBytes:
		b.WriteString("the string ")
		b.WriteString(strconv.Quote(e.Value))
		b.WriteString(" contained NUL bytes")
	case KindInvalidUTF8:
		b.WriteString("string is not valid UTF-8")
	case KindInternal:
		b.WriteString("Tcl returned ")
		b.WriteString(e.Completion.Code.String())
		if e.Completion.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Completion.Message)
		}
	default:
		b.WriteString(string(e.Kind))
	}

	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func nullPointer(detail string) *Error {
	return &Error{Kind: KindNullPointer, Detail: detail}
}

func invalidUTF8(detail string) *Error {
	return &Error{Kind: KindInvalidUTF8, Detail: detail}
}

// checkCString reports why s cannot be passed to Tcl as a C string.
//
// A NUL byte is reported as KindNulBytes unless the string is also not
// valid UTF-8, in which case it cannot be reported faithfully and
// KindInvalidUTF8 is returned instead.
func checkCString(s string) error {
	valid := utf8.ValidString(s)
	if strings.IndexByte(s, 0) >= 0 {
		if valid {
			return &Error{Kind: KindNulBytes, Value: s}
		}
		return &Error{Kind: KindInvalidUTF8, Detail: "input contains NUL bytes"}
	}
	if !valid {
		return &Error{Kind: KindInvalidUTF8, Value: s, Detail: "input"}
	}
	return nil
}

// decodeResult turns bytes read from Tcl into a string.
func decodeResult(b []byte, ok bool, what string) (string, error) {
	if !ok {
		return "", nullPointer(what)
	}
	if !utf8.Valid(b) {
		return "", invalidUTF8(what)
	}
	return string(b), nil
}
