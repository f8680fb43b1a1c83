package live

import (
	"errors"
	"fmt"
)

// ErrFeedClosed is the cause recorded when a change feed ends while its
// channel is still open.
var ErrFeedClosed = errors.New("change feed closed")

// LoadError is a failed bulk read or subscription. The channel keeps the last
// good data alongside it.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("live %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AnomalyError is a change event that does not fit the record contract.
type AnomalyError struct {
	Op     string
	ID     string
	Reason string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("reconcile %s %q: %s", e.Op, e.ID, e.Reason)
}
