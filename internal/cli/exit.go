package cli

import (
	"errors"
	"strconv"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitUsage    = 2
	ExitProblems = 3
)

// ExitError carries the process exit code out of a command. Err is nil when
// the report already told the user everything.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func fatal(err error) error { return &ExitError{Code: ExitFatal, Err: err} }

func usage(err error) error { return &ExitError{Code: ExitUsage, Err: err} }

// ExitCode maps an error returned by the root command to a process exit
// code. Errors cobra raises itself, such as unknown commands, are usage
// errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitUsage
}
