package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorTypeNotInitialized ErrorType = "NOT_INITIALIZED"
	ErrorTypeLockHeld       ErrorType = "LOCK_HELD"
	ErrorTypeIO             ErrorType = "IO"
	ErrorTypeCorruptState   ErrorType = "CORRUPT_STATE"
)

// Exit codes returned by the CLI for each error type. Unclassified errors exit 1.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitNotInitialized = 2
	ExitLockHeld       = 3
	ExitIO             = 4
	ExitCorruptState   = 5
)

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrNotInitialized = &Error{Type: ErrorTypeNotInitialized}
	ErrLockHeld       = &Error{Type: ErrorTypeLockHeld}
	ErrIO             = &Error{Type: ErrorTypeIO}
	ErrCorruptState   = &Error{Type: ErrorTypeCorruptState}
)

// Error carries enough context (operation, path, version) to diagnose a failed run.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op,omitempty"`
	Path    string    `json:"path,omitempty"`
	Version string    `json:"version,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	} else {
		b.WriteString(strings.ToLower(string(e.Type)))
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Version != "" {
		fmt.Fprintf(&b, " (version %s)", e.Version)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithVersion returns a copy of e tagged with the version label.
func (e *Error) WithVersion(v string) *Error {
	c := *e
	c.Version = v
	return &c
}

func NotInitialized(root string) *Error {
	return &Error{
		Type:    ErrorTypeNotInitialized,
		Op:      "open project",
		Path:    root,
		Message: "not initialized, run 'gitnot init' first",
	}
}

func LockHeld(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeLockHeld,
		Op:      "acquire lock",
		Path:    path,
		Message: "another run is in progress",
		Err:     err,
	}
}

func IO(op, path string, err error) *Error {
	return &Error{
		Type: ErrorTypeIO,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

func CorruptState(op, message string) *Error {
	return &Error{
		Type:    ErrorTypeCorruptState,
		Op:      op,
		Message: message,
	}
}

// Conflict reports a second commit claiming an already recorded version.
func Conflict(version string) *Error {
	return &Error{
		Type:    ErrorTypeCorruptState,
		Op:      "write changelog",
		Version: version,
		Message: "an entry already exists for this version",
	}
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch TypeOf(err) {
	case ErrorTypeNotInitialized:
		return ExitNotInitialized
	case ErrorTypeLockHeld:
		return ExitLockHeld
	case ErrorTypeIO:
		return ExitIO
	case ErrorTypeCorruptState:
		return ExitCorruptState
	default:
		return ExitFailure
	}
}
