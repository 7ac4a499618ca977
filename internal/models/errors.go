package models

import "errors"

// Request-fatal errors. Handlers map these to HTTP status codes; anything
// else that escapes the pipeline is a 500. Collaborator failures (retrieval,
// generation, persistence) are absorbed before they get here.
var (
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrBadCredentials  = errors.New("invalid username or password")
	ErrUserExists      = errors.New("username already taken")
	ErrUnauthenticated = errors.New("missing or invalid session token")
	ErrForbidden       = errors.New("insufficient privileges")
	ErrRateLimited     = errors.New("too many requests")
)
