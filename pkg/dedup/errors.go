package dedup

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is on an *Error of the corresponding kind.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInputUnavailable = errors.New("input unavailable")
	ErrOutputUnwritable = errors.New("output not writable")
	ErrIO               = errors.New("i/o error")
)

// Kind classifies a run failure.
type Kind int

const (
	// KindConfig is a bad Config or a checkpoint that does not match.
	KindConfig Kind = iota + 1
	// KindInput means the input could not be opened or is not a regular file.
	KindInput
	// KindOutput means the output could not be created or truncated.
	KindOutput
	// KindIO is a read or write failure while chunks were being processed.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrInvalidConfig
	case KindInput:
		return ErrInputUnavailable
	case KindOutput:
		return ErrOutputUnwritable
	default:
		return ErrIO
	}
}

// Error is returned by Run for every failure except cancellation.
// Chunk is -1 and Offset is -1 when the failure is not tied to a position.
type Error struct {
	Kind   Kind
	Path   string
	Chunk  int
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Chunk >= 0 {
		msg += fmt.Sprintf(" (chunk %d", e.Chunk)
		if e.Offset >= 0 {
			msg += fmt.Sprintf(", offset %d", e.Offset)
		}
		msg += ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func configError(path string, err error) *Error {
	return &Error{Kind: KindConfig, Path: path, Chunk: -1, Offset: -1, Err: err}
}

func inputError(path string, err error) *Error {
	return &Error{Kind: KindInput, Path: path, Chunk: -1, Offset: -1, Err: err}
}

func outputError(path string, err error) *Error {
	return &Error{Kind: KindOutput, Path: path, Chunk: -1, Offset: -1, Err: err}
}

func ioError(path string, chunk int, offset int64, err error) *Error {
	return &Error{Kind: KindIO, Path: path, Chunk: chunk, Offset: offset, Err: err}
}
