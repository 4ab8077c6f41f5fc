package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// StorageError is raised when a remote API call made on behalf of a storage
// operation fails. The original message and code from the API are preserved
// so callers can tell what the remote system rejected.
type StorageError struct {
	Code    string
	Message string
	Err     error
}

func (e StorageError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storage error: %s (code %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("storage error: %s", e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// Is enables errors.Is matching on StorageError regardless of code.
func (e StorageError) Is(target error) bool {
	_, ok := target.(StorageError)
	if ok {
		return true
	}
	_, ok = target.(*StorageError)
	return ok
}
