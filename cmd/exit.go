package cmd

import (
	"errors"

	"github.com/cyqual-sec/aws-delete-default-vpc/vpc"
)

const (
	exitOK = iota
	exitFatal
	exitUsage
	exitAuth
	exitValidation
)

// runError marks an error returned by the command body, as opposed to one
// raised by cobra while parsing flags and arguments
type runError struct {
	err error
}

func (e *runError) Error() string {
	return e.err.Error()
}

func (e *runError) Unwrap() error {
	return e.err
}

// exitCode maps the error that ended a run to the process exit status.
// Errors that did not come from the command body come from flag parsing.
func exitCode(err error) int {
	var (
		configErr     *vpc.ConfigError
		authErr       *vpc.AuthError
		validationErr *vpc.ValidationError
		runErr        *runError
	)

	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &configErr):
		return exitUsage
	case errors.As(err, &authErr):
		return exitAuth
	case errors.As(err, &validationErr):
		return exitValidation
	case errors.As(err, &runErr):
		return exitFatal
	default:
		return exitUsage
	}
}
