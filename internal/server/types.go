// Package server defines the collaborator interfaces and utility helpers that
// are reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/vanishchat/internal/relay"
)

// Dispatcher consumes the inbound side of every client connection.
// *relay.Engine is the production implementation.
type Dispatcher interface {
	HandleFrame(conn relay.Conn, frame []byte) error
	Disconnect(conn relay.Conn)
}

// ChatCounter reports how many chats are currently held in memory.
type ChatCounter interface {
	Len() int
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
