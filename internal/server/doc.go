// Package server implements the HTTP and WebSocket side of the relay.
//
// The implementation is organized into specialized files for configuration,
// hub and room membership, clients, routing, and HTTP handlers. The room
// state itself lives in package chat and the event protocol in package relay.
package server
