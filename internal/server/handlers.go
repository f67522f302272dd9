package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Tyrowin/echochamber/internal/metrics"
)

// StatusResponse is the body served at "/".
type StatusResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// WebSocketHandler upgrades GET requests and starts a session for the new
// client. The handler returns as soon as the session is running.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.UpgradeFailures.Inc()
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := s.ids.Next()
	ch := newWSConn(conn, r.RemoteAddr, connOptions{
		maxMessageSize: s.cfg.MaxMessageSize,
		sendBufferSize: s.cfg.SendBufferSize,
		clock:          s.clock,
		logger:         s.logger.With("client_id", id),
	})

	s.startSession(NewSession(id, ch, s.hub, SessionOptions{
		Announce: s.cfg.Announce,
		Limiter:  newRateLimiter(s.cfg.RateLimit()),
		Logger:   s.logger,
	}))
}

// HealthHandler reports liveness as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Echo chamber is running!")
}

// StatusHandler reports the number of connected clients as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := StatusResponse{Status: "ok", Clients: s.hub.Len()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Error writing status response", "error", err)
	}
}

// TestPageHandler serves a minimal browser client for the /ws endpoint.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.logger.Error("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Echo Chamber</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        #log div { margin: 3px 0; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Echo Chamber</h1>
    <div>
        <input type="text" id="input" placeholder="Say something..." size="40" disabled>
        <button id="send" disabled>Send</button>
        <button id="toggle">Connect</button>
    </div>
    <div id="log"></div>

    <script>
        const log = document.getElementById('log');
        const input = document.getElementById('input');
        const send = document.getElementById('send');
        const toggle = document.getElementById('toggle');
        let ws = null;

        function append(text, cls) {
            const line = document.createElement('div');
            line.textContent = text;
            if (cls) line.className = cls;
            log.appendChild(line);
            log.scrollTop = log.scrollHeight;
        }

        function setConnected(connected) {
            input.disabled = !connected;
            send.disabled = !connected;
            toggle.textContent = connected ? 'Disconnect' : 'Connect';
        }

        toggle.onclick = function () {
            if (ws) { ws.close(); return; }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function () { append('connected', 'system'); setConnected(true); };
            ws.onmessage = function (e) { append(e.data); };
            ws.onclose = function (e) {
                append('closed (' + e.code + (e.reason ? ': ' + e.reason : '') + ')', 'system');
                setConnected(false);
                ws = null;
            };
        };

        function submit() {
            if (ws && input.value) { ws.send(input.value); input.value = ''; }
        }
        send.onclick = submit;
        input.addEventListener('keypress', function (e) { if (e.key === 'Enter') submit(); });
    </script>
</body>
</html>`
