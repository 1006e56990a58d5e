// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	ActiveChats int    `json:"activeChats"`
}

// WebSocketHandler validates that the request uses GET, upgrades the
// connection (the upgrader enforces the origin allow-list) and hands the new
// client to the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, s.engine, r.RemoteAddr, s.clientConfig())
	if !s.hub.Register(client) {
		s.log.Warn("Hub is shutting down; refusing connection", "remote_addr", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler reports process status, the current time and how many chats
// are held in memory.
func HealthHandler(clock clockwork.Clock, chats ChatCounter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := HealthStatus{
			Status:      "ok",
			Timestamp:   clock.Now().UTC().Format(time.RFC3339),
			ActiveChats: chats.Len(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Default().Error("Error writing health response", "error", err)
		}
	})
}

// TestPageHandler serves an HTML page for exercising the relay by hand: join
// a chat, send messages, and trigger deletion.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Default().Error("Error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Relay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Relay WebSocket Test</h1>

    <div>
        <input type="text" id="inviteId" placeholder="Invite id">
        <input type="text" id="alias" placeholder="Alias">
        <button onclick="join()">Join</button>
        <button onclick="requestDelete()">Delete chat</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');

        function log(text, color) {
            const el = document.createElement('div');
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function emit(event, data) {
            ws.send(JSON.stringify({ event: event, data: data }));
        }

        function field(id) { return document.getElementById(id).value.trim(); }

        function join() {
            emit('join-chat', { inviteId: field('inviteId'), alias: field('alias') });
        }

        function sendMessage() {
            const text = field('messageInput');
            emit('message', { inviteId: field('inviteId'), message: text, sender: field('alias') });
            log('You: ' + text, 'blue');
            document.getElementById('messageInput').value = '';
        }

        function requestDelete() {
            emit('auto-delete-request', { inviteId: field('inviteId') });
        }

        ws.onopen = function() { log('Connected'); };
        ws.onclose = function() { log('Connection closed'); };
        ws.onmessage = function(event) {
            const env = JSON.parse(event.data);
            switch (env.event) {
            case 'message':
                log(env.data.sender + ': ' + env.data.message, 'green');
                break;
            case 'auto-delete-trigger':
                messagesDiv.innerHTML = '';
                log(env.data.message);
                break;
            default:
                log(env.event + ': ' + JSON.stringify(env.data));
            }
        };
    </script>
</body>
</html>`
