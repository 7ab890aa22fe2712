package nethttp

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veldra/ignis/internal/engine"
	"github.com/veldra/ignis/internal/pubsub"
)

// Same cadence as the teacher's websocket.go: ping period derived from
// pongWait so a client that stops answering pongs is dropped within one
// read-deadline window. defaultIdleTimeout backs connections whose
// WsRouteConfig didn't carry an IdleTimeoutSec (e.g. direct callers in
// tests); engine-built configs always set one (spec §6, >= 5s).
const (
	writeWait          = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second
	maxMessageSize     = 32 * 1024
)

// CheckOrigin is left permissive here: origin enforcement for WebSocket
// upgrades lives in the cors middleware ahead of dispatch, same division
// of responsibility the teacher's upgrader comment describes.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// webSocketConn adapts a *websocket.Conn to engine.WebSocket and to
// pubsub.Subscriber, so Hub.Publish can deliver straight to it.
type webSocketConn struct {
	conn     *websocket.Conn
	hub      *pubsub.Hub
	userData any

	mu sync.Mutex
}

var (
	_ engine.WebSocket  = (*webSocketConn)(nil)
	_ pubsub.Subscriber = (*webSocketConn)(nil)
)

func (ws *webSocketConn) GetUserData() any { return ws.userData }

func (ws *webSocketConn) Send(data []byte, binary bool) bool {
	mt := websocket.TextMessage
	if binary {
		mt = websocket.BinaryMessage
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteMessage(mt, data) == nil
}

func (ws *webSocketConn) End(code int, reason string) {
	ws.mu.Lock()
	ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	ws.mu.Unlock()
	ws.conn.Close()
}

func (ws *webSocketConn) Subscribe(topic string) bool   { return ws.hub.Subscribe(topic, ws) }
func (ws *webSocketConn) Unsubscribe(topic string) bool { return ws.hub.Unsubscribe(topic, ws) }

// Deliver satisfies pubsub.Subscriber: a published message is pushed to
// the client exactly as a direct Send would.
func (ws *webSocketConn) Deliver(msg pubsub.Message) {
	ws.Send(msg.Data, msg.Binary)
}

// runReadPump drives one connection's inbound frames plus its ping
// ticker, blocking until the peer disconnects or sends a close frame —
// the same shape as the teacher's readPump, merged with its writePump's
// ticker since this transport has no outbound channel to select against.
func runReadPump(ws *webSocketConn, cfg *engine.WsRouteConfig, userData any) {
	pongWait := defaultIdleTimeout
	if cfg.IdleTimeoutSec > 0 {
		pongWait = time.Duration(cfg.IdleTimeoutSec) * time.Second
	}
	pingPeriod := (pongWait * 9) / 10

	ws.conn.SetReadLimit(maxMessageSize)
	ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		ws.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	reportError := func(err error) {
		if cfg.Error != nil {
			cfg.Error(ws, err, userData)
		}
	}

	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ws.mu.Lock()
				ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := ws.conn.WriteMessage(websocket.PingMessage, nil)
				ws.mu.Unlock()
				if err != nil {
					reportError(err)
					return
				}
			case <-pingDone:
				return
			}
		}
	}()
	defer close(pingDone)

	closeCode := websocket.CloseNormalClosure
	closeReason := ""
	for {
		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
				closeReason = ce.Text
				if websocket.IsUnexpectedCloseError(ce, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					reportError(err)
				}
			} else {
				reportError(err)
			}
			break
		}
		if cfg.Message != nil {
			cfg.Message(ws, data, msgType == websocket.BinaryMessage, userData)
		}
	}

	ws.conn.Close()
	if cfg.Close != nil {
		cfg.Close(ws, closeCode, closeReason, userData)
	}
}
