package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// The error taxonomy from spec.md §7. internal/fs translates each of these
// into exactly one POSIX errno at the kernel reply boundary; nothing else
// crosses that boundary.
var (
	// ErrHTTP indicates a transport or response-decode failure.
	ErrHTTP = errors.New("remote: transport or decode failure")

	// ErrAuth indicates missing or rejected credentials.
	ErrAuth = errors.New("remote: missing or invalid credentials")

	// ErrSerialization indicates a local JSON-encode failure of outbound
	// metadata.
	ErrSerialization = errors.New("remote: failed to encode request metadata")
)

// NotFoundError is returned for 404 responses.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("remote: not found: %s", e.Path) }

// PermissionDeniedError is returned for 401/403 responses.
type PermissionDeniedError struct {
	Path string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("remote: permission denied: %s", e.Path)
}

// ConflictError is returned for 409 responses (spec.md §9: "An implementation
// that returns EEXIST on 409 for create-class paths would be more
// POSIX-faithful" — resolved here by surfacing 409 distinctly).
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("remote: conflict: %s", e.Path) }

// TooLargeError is returned for 413 responses.
type TooLargeError struct{ Path string }

func (e *TooLargeError) Error() string { return fmt.Sprintf("remote: request too large: %s", e.Path) }

// NoSpaceError is returned for 507 responses.
type NoSpaceError struct{ Path string }

func (e *NoSpaceError) Error() string { return fmt.Sprintf("remote: no space left: %s", e.Path) }

// ServerError is returned for any other non-2xx response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("remote: server error (status %d): %s", e.Status, e.Message)
}

// translateStatus maps an HTTP status code to the taxonomy, given the path
// the call was acting on and the response body (used verbatim as the
// message for unclassified errors).
func translateStatus(status int, path, body string) error {
	switch status {
	case http.StatusNotFound:
		return &NotFoundError{Path: path}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &PermissionDeniedError{Path: path}
	case http.StatusConflict:
		return &ConflictError{Path: path}
	case http.StatusRequestEntityTooLarge:
		return &TooLargeError{Path: path}
	case http.StatusInsufficientStorage:
		return &NoSpaceError{Path: path}
	default:
		return &ServerError{Status: status, Message: body}
	}
}
