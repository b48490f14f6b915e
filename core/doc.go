// Package core defines the chat domain model shared by storage, the HTTP API
// and the realtime hub.
//
// The package provides:
//   - Domain types (User, Message) with their JSON and BSON field names
//   - Constants used across layers (timeouts, cookie and event names)
//   - RedisCache, the optional distributed state backend
package core
