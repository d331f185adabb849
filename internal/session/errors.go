package session

import (
	"errors"
	"fmt"

	"github.com/joltkit/jolt/internal/state"
)

// ErrNoActiveSession is matched by every operation attempted without an open
// session.
var ErrNoActiveSession = errors.New("no active session")

// StateError reports an operation rejected by the current lifecycle state.
type StateError struct {
	Op    string
	State state.State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (state=%s)", e.Op, ErrNoActiveSession, e.State)
}

// Is lets errors.Is(err, ErrNoActiveSession) match.
func (e *StateError) Is(target error) bool {
	return target == ErrNoActiveSession
}
