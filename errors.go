package redis

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Abort codes. These are the only codes an AbortError ever carries;
// they classify *why* a command was aborted rather than what Redis said
// about it.
const (
	CodeClosed           = "NR_CLOSED"
	CodeUncertainState   = "UNCERTAIN_STATE"
	CodeConnectionBroken = "CONNECTION_BROKEN"
	CodeFatal            = "NR_FATAL"
)

// AbortError is raised for a command that never reached, or never heard
// back from, the server — as opposed to ReplyError, which carries an
// actual "-ERR ..." reply. Origin, when non-empty, is the call-site tag
// captured when the command was sent.
type AbortError struct {
	Code    string
	Message string
	Command string
	Args    []Arg
	Origin  string
	cause   error
}

func (e *AbortError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Command != "" {
		fmt.Fprintf(&b, " (command: %s)", strings.ToUpper(e.Command))
	}
	if e.Origin != "" {
		b.WriteString("\n")
		b.WriteString(e.Origin)
	}
	return b.String()
}

// Unwrap exposes any underlying transport error for errors.Is/As.
func (e *AbortError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ErrClosed) match an AbortError with CodeClosed.
func (e *AbortError) Is(target error) bool { return target == ErrClosed && e.Code == CodeClosed }

func newAbortError(code, message string, cmd *Command, cause error) *AbortError {
	e := &AbortError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
	if cmd != nil {
		e.Command = cmd.Name
		e.Args = cmd.Args
		e.Origin = cmd.Origin
	}
	if cause != nil {
		e.cause = errors.WithStack(cause)
	}
	return e
}

// ReplyError wraps a server "-" reply (resp.ServerError) with the command
// context that produced it, plus the leading-uppercase-token Code
// extraction.
type ReplyError struct {
	Code    string
	Message string
	Command string
	Args    []Arg
	Origin  string
	cause   error
}

func (e *ReplyError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Command != "" {
		fmt.Fprintf(&b, " (command: %s)", strings.ToUpper(e.Command))
	}
	return b.String()
}

func (e *ReplyError) Unwrap() error { return e.cause }

func newReplyError(message string, cmd *Command) *ReplyError {
	e := &ReplyError{Message: message}
	for i := 0; i < len(message); i++ {
		c := message[i]
		if c == ' ' {
			if i > 0 {
				e.Code = message[:i]
			}
			break
		}
		if c < 'A' || c > 'Z' {
			break
		}
	}
	if cmd != nil {
		e.Command = cmd.Name
		e.Args = cmd.Args
		e.Origin = cmd.Origin
		e.cause = errors.WithStack(errors.New(message))
	}
	return e
}

// AggregateError collects multiple sink-less errors produced by a single
// flush. In debug mode, a flush with more than one sink-less error emits
// an AggregateError instead of just the first.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }
