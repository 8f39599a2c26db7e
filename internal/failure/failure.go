// Package failure classifies run errors so the CLI can report them and pick
// an exit code.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks a missing credential or an invalid option.
	ErrConfiguration = errors.New("configuration error")
	// ErrService marks a failed call to the transcription service.
	ErrService = errors.New("service error")
	// ErrIO marks an unreadable input or unwritable output.
	ErrIO = errors.New("io error")
)

// Exit codes returned by the CLI.
const (
	ExitOK            = 0
	ExitUnknown       = 1
	ExitConfiguration = 2
	ExitService       = 3
	ExitIO            = 4
)

// Wrap tags err with marker and prefixes op. A nil err produces an error
// carrying only the marker and op.
func Wrap(marker error, op string, err error) error {
	if marker == nil {
		marker = ErrService
	}
	op = strings.TrimSpace(op)
	switch {
	case err != nil && op != "":
		return fmt.Errorf("%w: %s: %w", marker, op, err)
	case err != nil:
		return fmt.Errorf("%w: %w", marker, err)
	case op != "":
		return fmt.Errorf("%w: %s", marker, op)
	default:
		return marker
	}
}

// Configf builds a configuration error from a format string.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrService):
		return ExitService
	case errors.Is(err, ErrIO):
		return ExitIO
	default:
		return ExitUnknown
	}
}
