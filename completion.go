package nativetcl

import (
	"fmt"

	"github.com/feather-lang/nativetcl/foreign"
)

// Code is a Tcl completion code.
type Code int

const (
	// CodeOK: everything went fine.
	CodeOK Code = iota
	// CodeError: there was an error; the message is left as the result.
	CodeError
	// CodeReturn: the last command executed was a return.
	CodeReturn
	// CodeBreak: the last command executed was a break.
	CodeBreak
	// CodeContinue: the last command executed was a continue.
	CodeContinue
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "TCL_OK"
	case CodeError:
		return "TCL_ERROR"
	case CodeReturn:
		return "TCL_RETURN"
	case CodeBreak:
		return "TCL_BREAK"
	case CodeContinue:
		return "TCL_CONTINUE"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Completion is the outcome of an evaluation or control operation.
// Message is only set for CodeError.
type Completion struct {
	Code    Code
	Message string
}

// Err returns nil for every code except CodeError, which becomes an
// *Error of KindInternal carrying the message.
func (c Completion) Err() error {
	if c.Code != CodeError {
		return nil
	}
	return &Error{Kind: KindInternal, Completion: c}
}

// PanicIfError panics with the message if c is a CodeError, else does
// nothing.
func (c Completion) PanicIfError() {
	if c.Code == CodeError {
		panic(c.Message)
	}
}

// codeFromStatus maps the closed set of statuses defined by tcl.h. Any
// other value means the library does not match the ABI this package was
// built for.
func codeFromStatus(status foreign.Status) (Code, bool) {
	switch status {
	case foreign.StatusOK:
		return CodeOK, true
	case foreign.StatusError:
		return CodeError, true
	case foreign.StatusReturn:
		return CodeReturn, true
	case foreign.StatusBreak:
		return CodeBreak, true
	case foreign.StatusContinue:
		return CodeContinue, true
	}
	return 0, false
}

// completion translates a raw status of ip into a Completion. For
// StatusError the interpreter's string result is read as the message; if
// that read fails the returned error is an ErrInternal wrapping the read
// failure, so neither failure is lost.
func (i *Interp) completion(status foreign.Status) (Completion, error) {
	code, ok := codeFromStatus(status)
	if !ok {
		i.logger.Error("invalid completion code", zapStatus(status))
		panic(fmt.Sprintf("nativetcl: invalid completion code %d", int32(status)))
	}
	if code != CodeError {
		return Completion{Code: code}, nil
	}

	msg, err := i.StringResult()
	if err != nil {
		return Completion{Code: CodeError}, &Error{
			Kind:       KindInternal,
			Completion: Completion{Code: CodeError},
			Detail:     "diagnostic text unavailable",
			Cause:      err,
		}
	}
	return Completion{Code: CodeError, Message: msg}, nil
}

// check runs status through the completion model and returns the error, if
// any, that it maps to.
func (i *Interp) check(status foreign.Status) (Completion, error) {
	c, err := i.completion(status)
	if err != nil {
		return c, err
	}
	return c, c.Err()
}
