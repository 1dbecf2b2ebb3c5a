package ptypool

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowOrigin,
}

func allowOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// connWriter serializes concurrent writes to a single *websocket.Conn: the
// output forwarder and the JSON status writer both write to the same
// connection, and gorilla/websocket does not allow concurrent writers.
type connWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *connWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (w *connWriter) writeBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ServeHTTP upgrades the request to a WebSocket and attaches it to the
// session named by key, creating the session per spec if it does not
// already exist.
func (p *Pool) ServeHTTP(w http.ResponseWriter, r *http.Request, spec AttachSpec) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := &connWriter{conn: conn}
	sessionID := spec.Key

	session, err := p.Attach(spec)
	if err != nil {
		logging.Error(logging.CompPTY, "attach failed for %s: %v", sessionID, err)
		_ = writer.writeJSON(ServerMessage{
			Type: "error", Code: "ATTACH_FAILED", Message: err.Error(),
			SessionID: sessionID, Time: time.Now().UTC(),
		})
		return
	}
	defer p.Detach(sessionID)

	_ = writer.writeJSON(ServerMessage{Type: "status", Event: "connected", SessionID: sessionID, Time: time.Now().UTC()})

	subID, outCh := session.Subscribe()
	defer session.Unsubscribe(subID)

	done := make(chan struct{})
	go forwardOutput(writer, outCh, done)

	readLoop(conn, writer, session, sessionID)
	close(done)
}

func forwardOutput(writer *connWriter, outCh <-chan outputMsg, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-outCh:
			if !ok {
				return
			}
			if msg.Lagged {
				continue
			}
			if err := writer.writeBinary(msg.Data); err != nil {
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, writer *connWriter, session *Session, sessionID string) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.writeJSON(ServerMessage{
				Type: "error", Code: "INVALID_MESSAGE", Message: "invalid json payload",
				SessionID: sessionID, Time: time.Now().UTC(),
			})
			continue
		}

		switch msg.Type {
		case "input":
			session.WriteInput(msg.Data)
		case "resize":
			if err := session.Resize(msg.Cols, msg.Rows); err != nil {
				_ = writer.writeJSON(ServerMessage{
					Type: "error", Code: "RESIZE_FAILED", Message: err.Error(),
					SessionID: sessionID, Time: time.Now().UTC(),
				})
			}
		case "ping":
			_ = writer.writeJSON(ServerMessage{Type: "status", Event: "pong", SessionID: sessionID, Time: time.Now().UTC()})
		default:
			_ = writer.writeJSON(ServerMessage{
				Type: "error", Code: "UNSUPPORTED_MESSAGE", Message: "supported message types: ping,input,resize",
				SessionID: sessionID, Time: time.Now().UTC(),
			})
		}
	}
}
