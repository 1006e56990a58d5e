// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// Routes returns a ServeMux with the health check, the WebSocket endpoint and
// the manual test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	health := HealthHandler(s.clock, s.registry)
	mux.Handle("/{$}", health)
	mux.Handle("/health", health)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
