package p4

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Sentinel errors for entity operations.
var (
	ErrTypeMismatch = errors.New("argument is not the expected entity")
	ErrReverted     = errors.New("changelist has been reverted")
	ErrSubmitted    = errors.New("changelist has been submitted")
	ErrDeleted      = errors.New("changelist has been deleted")
)

// ConnectionError is returned when a Connection cannot be set up,
// typically because the server port or user could not be resolved.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string {
	return "p4 connection: " + e.Message
}

// CommandError is returned when the p4 process wrote to stderr or emitted an
// error record at or above the connection's severity threshold.
type CommandError struct {
	// Message is the server message or the stderr text.
	Message string

	// Record is the error record that triggered the failure, nil for stderr failures.
	Record *Record

	// Command is the attempted argument vector with secrets redacted.
	Command []string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("p4 command failed: %s (%s)", strings.TrimSpace(e.Message), e.CommandLine())
}

// CommandLine renders the attempted command so it can be pasted into a shell.
func (e *CommandError) CommandLine() string {
	return shellquote.Join(e.Command...)
}

// RevisionError is returned when a file-level operation fails because the
// file is outside the workspace or cannot be added.
type RevisionError struct {
	Path    string
	Message string
	Err     error
}

func (e *RevisionError) Error() string {
	if e.Path == "" {
		return "p4 revision: " + e.Message
	}
	return fmt.Sprintf("p4 revision %s: %s", e.Path, e.Message)
}

func (e *RevisionError) Unwrap() error { return e.Err }

// ChangelistError is returned for invalid changelist lifecycle transitions and
// for failures raised inside Changelist.Batch.
type ChangelistError struct {
	Change int
	Err    error
}

func (e *ChangelistError) Error() string {
	return fmt.Sprintf("p4 changelist %s: %v", changeArg(e.Change), e.Err)
}

func (e *ChangelistError) Unwrap() error { return e.Err }

// ShelveError is returned when shelving files of the default changelist
// without naming a target changelist.
type ShelveError struct {
	Path string
}

func (e *ShelveError) Error() string {
	return fmt.Sprintf("p4 shelve %s: unable to shelve files in the default changelist", e.Path)
}

// MissingFieldError is returned when a record does not carry the requested field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("p4 record: missing field %q", e.Field)
}

// NotMemberError is returned when removing a revision that is not part of a changelist.
type NotMemberError struct {
	Change int
	Path   string
}

func (e *NotMemberError) Error() string {
	return fmt.Sprintf("p4 changelist %s: %s is not a member", changeArg(e.Change), e.Path)
}
