package api

import (
	"context"
	"encoding/json"

	"chatapp/core"
)

// contextKey is a private type to prevent context key collisions across packages
type contextKey string

// Context keys set by the middleware chain
const (
	// ContextKeyUser stores the authenticated user (*core.User)
	ContextKeyUser contextKey = "user"

	// ContextKeyCookies stores the parsed request cookies (map[string]string)
	ContextKeyCookies contextKey = "cookies"

	// ContextKeyJSONBody stores the validated raw JSON body (json.RawMessage)
	ContextKeyJSONBody contextKey = "json_body"

	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"
)

// GetUser extracts the authenticated user set by protectRoute
func GetUser(ctx context.Context) (*core.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*core.User)
	return user, ok && user != nil
}

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *core.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// GetCookies returns the name to value cookie mapping built by cookieMiddleware.
// The map is never nil.
func GetCookies(ctx context.Context) map[string]string {
	cookies, ok := ctx.Value(ContextKeyCookies).(map[string]string)
	if !ok || cookies == nil {
		return map[string]string{}
	}
	return cookies
}

// WithCookies returns a context carrying the parsed cookies
func WithCookies(ctx context.Context, cookies map[string]string) context.Context {
	return context.WithValue(ctx, ContextKeyCookies, cookies)
}

// GetJSONBody returns the request body validated by jsonBodyMiddleware
func GetJSONBody(ctx context.Context) (json.RawMessage, bool) {
	body, ok := ctx.Value(ContextKeyJSONBody).(json.RawMessage)
	return body, ok
}

// WithJSONBody returns a context carrying a validated JSON body
func WithJSONBody(ctx context.Context, body json.RawMessage) context.Context {
	return context.WithValue(ctx, ContextKeyJSONBody, body)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyRequestID).(string)
	return id, ok
}

// GetRequestIDOrDefault returns the request ID or "unknown"
func GetRequestIDOrDefault(ctx context.Context) string {
	if id, ok := GetRequestID(ctx); ok && id != "" {
		return id
	}
	return "unknown"
}

// WithRequestID returns a context carrying the request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}
