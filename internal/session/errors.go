package session

import (
	"errors"
	"fmt"
)

var (
	ErrNameRequired     = errors.New("display name is required")
	ErrRoomRequired     = errors.New("room id is required")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrToggleInProgress = errors.New("another media toggle is in progress")
	ErrSignalingClosed  = errors.New("signaling connection closed")
)

// LinkError is a negotiation failure on a single PeerLink. It never ends the
// call; the affected link stays where it was.
type LinkError struct {
	Remote string
	Op     string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("peer %s: %s: %v", e.Remote, e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func linkError(remote, op string, err error) *LinkError {
	return &LinkError{Remote: remote, Op: op, Err: err}
}
