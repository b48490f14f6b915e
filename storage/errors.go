package storage

import "errors"

// Storage error constants
var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailExists is returned when signing up with an email that is already registered
	ErrEmailExists = errors.New("email already exists")

	// ErrInvalidMessage is returned when a message has neither text nor image
	ErrInvalidMessage = errors.New("message must have text or image")

	// ErrDatabaseUnavailable is returned while the database connection is not established
	ErrDatabaseUnavailable = errors.New("database unavailable")

	// ErrUnknownDriver is returned for an unsupported database driver
	ErrUnknownDriver = errors.New("unknown database driver")
)
