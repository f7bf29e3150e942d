package chat

import (
	"errors"
	"fmt"
)

// ErrNoCache is returned by a Store when no history is cached under a key.
var ErrNoCache = errors.New("chat cache not found")

// ErrInvalidKey is returned for cache keys that are empty or would leave the
// store's directory.
var ErrInvalidKey = errors.New("invalid cache key")

// ErrImageTooLarge is returned when an image exceeds the configured limit.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// ErrEmptyReply is wrapped in a RemoteCallError when a backend answers with no text.
var ErrEmptyReply = errors.New("backend returned an empty reply")

// TypeError reports a value of the wrong shape handed to a buffer or history.
type TypeError struct {
	Value any
	Want  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: got %T, want %s", e.Value, e.Want)
}

// RemoteCallError wraps a failed or malformed backend call.
type RemoteCallError struct {
	Backend string
	Err     error
}

func (e *RemoteCallError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("remote call to %s failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("remote call failed: %v", e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
