package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// SilentError marks an error whose message the command already wrote
// to stderr. Run does not print it a second time.
type SilentError struct {
	err error
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}

// NewSilentError wraps err for Run to exit on without printing.
func NewSilentError(err error) error {
	return &SilentError{err: err}
}

// IsSilentError reports whether err (or any error in its chain) is a SilentError.
func IsSilentError(err error) bool {
	var se *SilentError
	return errors.As(err, &se)
}

// fail prints err to the command's stderr and returns it silenced.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err)
	return NewSilentError(err)
}
