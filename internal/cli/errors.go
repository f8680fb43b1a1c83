package cli

import (
	"errors"
	"fmt"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/format"

	"github.com/spf13/cobra"
)

const (
	exitInternal      = 1
	exitValidation    = 2
	exitAuthorization = 3
	exitNotFound      = 4
)

// reportedError marks an error already written for the user.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func isReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// ExitCode maps an error to the process exit status: 2 for bad input, 3 for
// a denied action, 4 for a missing record and 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, binding.ErrNoWorkspace) {
		return exitValidation
	}
	switch command.KindOf(err) {
	case command.KindValidation:
		return exitValidation
	case command.KindAuthorization:
		return exitAuthorization
	case command.KindNotFound:
		return exitNotFound
	}
	return exitInternal
}

func errorKind(err error) string {
	if errors.Is(err, binding.ErrNoWorkspace) {
		return string(command.KindValidation)
	}
	return string(command.KindOf(err))
}

// writeErr reports err, as the JSON error body with --json, and returns it.
func writeErr(cmd *cobra.Command, app *App, err error) error {
	if app.JSON {
		_ = format.WriteError(cmd.OutOrStdout(), errorKind(err), err.Error(), command.FieldOf(err))
	} else {
		msg := err.Error()
		if errors.Is(err, binding.ErrNoWorkspace) {
			msg += " (pass --workspace, set ATLVS_WORKSPACE, or run: atlvs config set workspace <id>)"
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", msg)
	}
	return reportedError{err: err}
}
