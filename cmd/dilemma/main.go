package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/parkerlabs/dilemma/internal/egress"
)

// Exit codes for different failure modes
const (
	ExitSuccess      = 0 // Session completed and the backup was written
	ExitDeclined     = 1 // Participant declined consent
	ExitError        = 2 // Configuration or runtime error
	ExitBackupFailed = 3 // Session ran but the local backup could not be written
)

// ConsentDeclinedError indicates the session ran correctly but ended at the
// consent gate. The partial data was still exported.
type ConsentDeclinedError struct{}

func (e *ConsentDeclinedError) Error() string {
	return "participant declined consent"
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var declined *ConsentDeclinedError
		if errors.As(err, &declined) {
			os.Exit(ExitDeclined)
		}
		var backupErr *egress.BackupError
		if errors.As(err, &backupErr) {
			os.Exit(ExitBackupFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
