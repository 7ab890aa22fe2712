package engine

import (
	"sync"
)

// mockResponseWriter is a bare, synchronous stand-in for a Transport's
// ResponseWriter: it never spawns goroutines, so tests drive it by
// calling feed/triggerAbort/triggerWritable directly and asserting on recorded writes.
type mockResponseWriter struct {
	mu sync.Mutex

	onDataCB    func(chunk []byte, isLast bool)
	onAbortedCB func()
	writableCB  func(offset int) bool
	ready       chan struct{}

	statusLine string
	headers    map[string]string
	corked     bool

	writes      [][]byte
	writeOffset int
	writeOK     bool
	ended       bool
	endChunk    []byte
	tryEndCalls int

	remoteAddr  string
	proxiedAddr string

	upgraded    bool
	upgradeErr  error
	upgradeData any
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		headers: make(map[string]string),
		writeOK: true,
		ready:   make(chan struct{}, 1),
	}
}

func (m *mockResponseWriter) OnData(cb func(chunk []byte, isLast bool)) {
	m.onDataCB = cb
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// waitReady blocks until OnData has been registered (i.e. BodyParser.
// begin has run on its own goroutine), so tests can safely call feed.
func (m *mockResponseWriter) waitReady() {
	<-m.ready
}
func (m *mockResponseWriter) OnAborted(cb func())                      { m.onAbortedCB = cb }
func (m *mockResponseWriter) OnWritable(cb func(offset int) bool)      { m.writableCB = cb }

func (m *mockResponseWriter) Cork(fn func()) {
	m.corked = true
	fn()
}

func (m *mockResponseWriter) WriteStatus(status string) { m.statusLine = status }
func (m *mockResponseWriter) WriteHeader(name, value string) {
	m.headers[name] = value
}

func (m *mockResponseWriter) Write(chunk []byte) bool {
	m.writes = append(m.writes, chunk)
	m.writeOffset += len(chunk)
	return m.writeOK
}

func (m *mockResponseWriter) TryEnd(chunk []byte, totalSize int) (bool, bool) {
	m.tryEndCalls++
	if len(chunk) > 0 {
		m.writes = append(m.writes, chunk)
		m.writeOffset += len(chunk)
	}
	m.ended = true
	m.endChunk = chunk
	return m.writeOK, true
}

func (m *mockResponseWriter) End(chunk []byte) {
	m.ended = true
	m.endChunk = chunk
}

func (m *mockResponseWriter) GetWriteOffset() int { return m.writeOffset }
func (m *mockResponseWriter) GetRemoteAddressAsText() string { return m.remoteAddr }
func (m *mockResponseWriter) GetProxiedRemoteAddressAsText() string { return m.proxiedAddr }

func (m *mockResponseWriter) Upgrade(userData any, key, protocol, extensions string) error {
	m.upgraded = true
	m.upgradeData = userData
	return m.upgradeErr
}

// feed simulates one transport chunk arriving for the registered sink.
func (m *mockResponseWriter) feed(chunk []byte, isLast bool) {
	if m.onDataCB != nil {
		m.onDataCB(chunk, isLast)
	}
}

func (m *mockResponseWriter) triggerAbort() {
	if m.onAbortedCB != nil {
		m.onAbortedCB()
	}
}

func (m *mockResponseWriter) triggerWritable(offset int) {
	if m.writableCB != nil {
		m.writableCB(offset)
	}
}

// mockRequest is a fixed-value stand-in for a Transport's Request.
type mockRequest struct {
	method  string
	url     string
	headers map[string]string
	query   map[string]string
	params  map[string]string
}

func newMockRequest() *mockRequest {
	return &mockRequest{
		method:  "GET",
		url:     "/test",
		headers: make(map[string]string),
		query:   make(map[string]string),
		params:  make(map[string]string),
	}
}

func (r *mockRequest) GetMethod() string            { return r.method }
func (r *mockRequest) GetUrl() string                { return r.url }
func (r *mockRequest) GetHeader(name string) string { return r.headers[name] }
func (r *mockRequest) GetQuery(name string) string  { return r.query[name] }
func (r *mockRequest) GetParameter(indexOrName string) string { return r.params[indexOrName] }

// newTestHttpContext builds a free-standing HttpContext (no pool, no
// Server) wired to a mock transport pair, for exercising BodyParser/
// ResponseStreamer/HttpContext behavior directly.
func newTestHttpContext(limit int, contentLength string) (*HttpContext, *mockResponseWriter, *mockRequest) {
	w := newMockResponseWriter()
	r := newMockRequest()
	if contentLength != "" {
		r.headers["Content-Length"] = contentLength
	}
	ctx := newHttpContext(nil)
	ctx.resetFor(w, r, nil, limit)
	return ctx, w, r
}
