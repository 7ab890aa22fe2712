package nethttp

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/veldra/ignis/internal/engine"
	"github.com/veldra/ignis/internal/pubsub"
)

const readChunkSize = 32 * 1024

// responseWriter adapts an http.ResponseWriter/*http.Request pair to
// engine.ResponseWriter. net/http writes are synchronous and never
// partial, so unlike a raw-socket transport this one never has to wait
// for a writable event mid-response: Write/TryEnd/End always run to
// completion (or fail outright) before returning, and OnWritable is
// consequently never invoked in practice — a documented simplification
// of the raw-socket contract described in internal/engine/streamer.go.
type responseWriter struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
	hub     *pubsub.Hub

	mu          sync.Mutex
	statusCode  int
	headersSent bool
	writeOffset int

	onAbortedCB func()
	abortOnce   sync.Once

	finished   chan struct{}
	finishOnce sync.Once

	wsCfg *engine.WsRouteConfig
}

func newResponseWriter(w http.ResponseWriter, r *http.Request, hub *pubsub.Hub) *responseWriter {
	rw := &responseWriter{
		w:          w,
		r:          r,
		hub:        hub,
		statusCode: http.StatusOK,
		finished:   make(chan struct{}),
	}
	if f, ok := w.(http.Flusher); ok {
		rw.flusher = f
	}
	go rw.watchAbort()
	return rw
}

// watchAbort observes the request context, which net/http cancels when
// the peer disconnects or the handler returns. Since every handler this
// package drives blocks on rw.finished before returning, a cancellation
// observed before rw.finished closes can only mean the peer disconnected.
func (rw *responseWriter) watchAbort() {
	select {
	case <-rw.r.Context().Done():
		rw.abortOnce.Do(func() {
			if rw.onAbortedCB != nil {
				rw.onAbortedCB()
			}
			rw.closeFinished()
		})
	case <-rw.finished:
	}
}

func (rw *responseWriter) closeFinished() {
	rw.finishOnce.Do(func() { close(rw.finished) })
}

func (rw *responseWriter) OnData(cb func(chunk []byte, isLast bool)) {
	go func() {
		buf := make([]byte, readChunkSize)
		for {
			n, err := rw.r.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				cb(chunk, err != nil)
			} else if err != nil {
				cb(nil, true)
			}
			if err != nil {
				return
			}
		}
	}()
}

func (rw *responseWriter) OnAborted(cb func()) {
	rw.mu.Lock()
	rw.onAbortedCB = cb
	rw.mu.Unlock()
}

func (rw *responseWriter) OnWritable(cb func(offset int) bool) {
	// Never fires: see the type-level doc comment.
}

func (rw *responseWriter) Cork(fn func()) {
	// net/http already buffers headers until the first body write, so
	// there is no separate corking step to perform.
	fn()
}

func (rw *responseWriter) WriteStatus(status string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if len(status) < 3 {
		return
	}
	if code, err := strconv.Atoi(status[:3]); err == nil {
		rw.statusCode = code
	}
}

func (rw *responseWriter) WriteHeader(name, value string) {
	rw.w.Header().Set(name, value)
}

func (rw *responseWriter) flushHeaders() {
	if !rw.headersSent {
		rw.headersSent = true
		rw.w.WriteHeader(rw.statusCode)
	}
}

func (rw *responseWriter) Write(chunk []byte) bool {
	rw.mu.Lock()
	rw.flushHeaders()
	rw.mu.Unlock()

	n, err := rw.w.Write(chunk)
	rw.mu.Lock()
	rw.writeOffset += n
	rw.mu.Unlock()
	if rw.flusher != nil {
		rw.flusher.Flush()
	}
	return err == nil
}

func (rw *responseWriter) TryEnd(chunk []byte, totalSize int) (ok bool, done bool) {
	ok = true
	if len(chunk) > 0 {
		ok = rw.Write(chunk)
	} else {
		rw.mu.Lock()
		rw.flushHeaders()
		rw.mu.Unlock()
	}
	rw.closeFinished()
	return ok, true
}

func (rw *responseWriter) End(chunk []byte) {
	if len(chunk) > 0 {
		rw.Write(chunk)
	} else {
		rw.mu.Lock()
		rw.flushHeaders()
		rw.mu.Unlock()
	}
	rw.closeFinished()
}

func (rw *responseWriter) GetWriteOffset() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.writeOffset
}

func (rw *responseWriter) GetRemoteAddressAsText() string {
	return rw.r.RemoteAddr
}

func (rw *responseWriter) GetProxiedRemoteAddressAsText() string {
	return rw.r.Header.Get("X-Forwarded-For")
}

// Upgrade performs the WebSocket handshake and, once established, blocks
// this goroutine running the connection's read pump until it closes —
// the same single-goroutine-per-connection shape as the teacher's
// StreamDeploymentLogs handler.
func (rw *responseWriter) Upgrade(userData any, key, protocol, extensions string) error {
	conn, err := wsUpgrader.Upgrade(rw.w, rw.r, nil)
	if err != nil {
		rw.closeFinished()
		return err
	}

	ws := &webSocketConn{conn: conn, hub: rw.hub, userData: userData}
	if rw.wsCfg.Open != nil {
		rw.wsCfg.Open(ws, userData)
	}
	runReadPump(ws, rw.wsCfg, userData)
	rw.hub.UnsubscribeAll(ws)
	rw.closeFinished()
	return nil
}
