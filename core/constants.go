package core

import "time"

const (
	// MaxErrorMessageLength caps error messages returned to clients
	MaxErrorMessageLength = 256

	// DBOperationTimeout bounds a single storage call made from a handler
	DBOperationTimeout = 5 * time.Second

	// DBHealthTimeout bounds the database ping used by readiness checks
	DBHealthTimeout = 2 * time.Second
)

// AuthCookieName is the cookie carrying the session JWT
const AuthCookieName = "jwt"

// Realtime event types pushed to connected clients
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)
