package reconcile

import (
	"errors"
	"fmt"
)

// LocalWriteError reports a failed local write for one remote item. The
// pass logs it and moves on to the next item.
type LocalWriteError struct {
	Op       string
	RemoteID string
	LocalID  int64
	Err      error
}

func (e *LocalWriteError) Error() string {
	if e.LocalID != 0 {
		return fmt.Sprintf("local write %s for remote %s (local %d): %v", e.Op, e.RemoteID, e.LocalID, e.Err)
	}
	return fmt.Sprintf("local write %s for remote %s: %v", e.Op, e.RemoteID, e.Err)
}

func (e *LocalWriteError) Unwrap() error { return e.Err }

// IsLocalWriteError reports whether err (or any error in its chain) is a
// LocalWriteError.
func IsLocalWriteError(err error) bool {
	var lw *LocalWriteError
	return errors.As(err, &lw)
}
