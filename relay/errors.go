package relay

import (
	"errors"
	"fmt"
)

var (
	ErrClosed  = errors.New("relay inbox is closed")
	ErrStopped = errors.New("relay loop has stopped")
)

// Store operations that can fail fatally.
const (
	opBootstrap = "bootstrap"
	opGetData   = "getdata"
	opAnnounce  = "announce"
)

// StoreError reports a failed read of the unconfirmed transaction store.
//
// It is fatal for the relay: without the unconfirmed set it cannot decide what to
// serve or announce, so the loop stops and hands the error to its caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("relay: store read failed during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err stops the relay.
func IsFatal(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
