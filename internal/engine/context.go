package engine

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is a single cached validator instance, mirroring the
// decode-then-validate idiom used throughout the teacher's handler layer.
var validate = validator.New()

// HttpContext is the per-request state machine described in spec §3/§4.4:
// request identity, status override, reply-vs-stream bookkeeping, and the
// owned BodyParser/ResponseStreamer. Contexts are recycled by a
// ContextPool and must never be touched by more than one goroutine at a
// time (§5).
type HttpContext struct {
	w      ResponseWriter
	r      Request
	server *Server
	pool   *ContextPool[*HttpContext]

	ip           string
	ipCached     bool
	method       string
	methodCached bool
	url          string
	urlCached    bool

	contentLength       int
	contentLengthKnown  bool
	contentLengthCached bool

	hasStatusOverride bool
	statusOverride    int

	replied   bool
	streaming bool
	aborted   bool
	done      bool

	requestID string

	mu sync.Mutex

	body     BodyParser
	streamer ResponseStreamer
}

func newHttpContext(pool *ContextPool[*HttpContext]) *HttpContext {
	c := &HttpContext{pool: pool}
	return c
}

// resetFor rebinds the context to a fresh request and clears all state
// (spec §3 lifecycle: "reset(response, request, server, max_body_bytes)").
func (c *HttpContext) resetFor(w ResponseWriter, r Request, server *Server, maxBodyBytes int) {
	c.w = w
	c.r = r
	c.server = server

	c.ipCached = false
	c.methodCached = false
	c.urlCached = false
	c.contentLengthCached = false

	c.hasStatusOverride = false
	c.statusOverride = 0

	c.replied = false
	c.streaming = false
	c.aborted = false
	c.done = false
	c.requestID = ""

	c.body.reset(c, maxBodyBytes)
	c.streamer.reset(c, w)
}

// clear is invoked exactly once per pool release: handles are nulled,
// but `done` stays true until the next resetFor (spec §3 invariant).
func (c *HttpContext) clear() {
	c.w = nil
	c.r = nil
	c.body.clear()
	c.streamer.clear()
}

// ---------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------

func (c *HttpContext) Ip() string {
	if !c.ipCached {
		c.ipCached = true
		c.ip = c.w.GetProxiedRemoteAddressAsText()
		if c.ip == "" {
			c.ip = c.w.GetRemoteAddressAsText()
		}
	}
	return c.ip
}

func (c *HttpContext) Method() string {
	if !c.methodCached {
		c.methodCached = true
		c.method = strings.ToLower(c.r.GetMethod())
	}
	return c.method
}

func (c *HttpContext) Url() string {
	if !c.urlCached {
		c.urlCached = true
		c.url = c.r.GetUrl()
	}
	return c.url
}

func (c *HttpContext) Header(name string) string { return c.r.GetHeader(name) }
func (c *HttpContext) Query(name string) string  { return c.r.GetQuery(name) }
func (c *HttpContext) Param(indexOrName string) string {
	return c.r.GetParameter(indexOrName)
}

// contentLengthValue is the internal lazy-cache BodyParser consults; it
// never fails, reporting (0, false) for a missing/invalid header.
func (c *HttpContext) contentLengthValue() (int, bool) {
	if c.contentLengthCached {
		return c.contentLength, c.contentLengthKnown
	}
	c.contentLengthCached = true
	raw := c.r.GetHeader("Content-Length")
	if raw == "" {
		c.contentLengthKnown = false
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.contentLengthKnown = false
		return 0, false
	}
	c.contentLength = n
	c.contentLengthKnown = true
	return n, true
}

// ContentLength returns the request's declared body size, or -1 if the
// header is absent or malformed (the spec's "unknown" sentinel).
func (c *HttpContext) ContentLength() int {
	n, ok := c.contentLengthValue()
	if !ok {
		return -1
	}
	return n
}

// RequestID returns a lazily-generated identifier used only for log
// correlation; it has no protocol meaning (SPEC_FULL §3).
func (c *HttpContext) RequestID() string {
	if c.requestID == "" {
		c.requestID = uuid.NewString()
	}
	return c.requestID
}

// ---------------------------------------------------------------------
// Status & headers
// ---------------------------------------------------------------------

// Status overrides the numeric status used by the next reply.
func (c *HttpContext) Status(code int) *HttpContext {
	c.statusOverride = code
	c.hasStatusOverride = true
	return c
}

func (c *HttpContext) statusCode(fallback int) int {
	code := fallback
	if c.hasStatusOverride {
		code = c.statusOverride
	}
	if code == 0 {
		code = 500
	}
	return code
}

// GetStatus returns the canonical status line for the next reply, using
// the override if set, else fallback, else 500.
func (c *HttpContext) GetStatus(fallback int) string {
	return StatusLine(c.statusCode(fallback))
}

// SetHeader writes a single header; a no-op once the response has ended.
func (c *HttpContext) SetHeader(name, value string) {
	if c.aborted || c.done || c.w == nil {
		return
	}
	c.w.WriteHeader(name, value)
}

// SetHeaders accepts one of the three frozen presets for the zero-copy
// fast path, or PresetCustom with an explicit header map.
func (c *HttpContext) SetHeaders(preset HeaderPreset, custom map[string]string) {
	if c.aborted || c.done || c.w == nil {
		return
	}
	if preset != PresetCustom {
		c.w.WriteHeader("Content-Type", preset.ContentType())
		return
	}
	for k, v := range custom {
		c.w.WriteHeader(k, v)
	}
}

// ---------------------------------------------------------------------
// Body
// ---------------------------------------------------------------------

func (c *HttpContext) Body() ([]byte, error)   { return c.body.body() }
func (c *HttpContext) Buffer() ([]byte, error) { return c.body.body() }
func (c *HttpContext) Text() (string, error)   { return c.body.text() }
func (c *HttpContext) Json() (any, error)      { return c.body.jsonValue() }

// Bind decodes the body as JSON into dst and validates it with the
// go-playground validator tags on dst's fields (SPEC_FULL §4.4),
// mirroring the teacher's decode-then-validate handler idiom.
func (c *HttpContext) Bind(dst any) error {
	b, err := c.body.body()
	if err != nil {
		return err
	}
	if len(b) > 0 {
		if jsonErr := json.Unmarshal(b, dst); jsonErr != nil {
			return ErrInvalidJSON
		}
	}
	if err := validate.Struct(dst); err != nil {
		return ErrValidationFailed.WithMessage(err.Error())
	}
	return nil
}

// ---------------------------------------------------------------------
// One-shot reply
// ---------------------------------------------------------------------

// Reply emits headers and body in a single framed write. Gated on
// streaming too: replied and streaming must never both be true at once
// (spec §3), and a stream already has its own framing in flight.
func (c *HttpContext) Reply(status int, preset HeaderPreset, headers map[string]string, body []byte) {
	if c.aborted || c.replied || c.streaming {
		return
	}
	c.streamer.begin(c.statusCode(status), preset, headers)
	c.replied = true
	c.streamer.tryEnd(body, len(body))
}

// Send dispatches by value shape, matching spec §4.4's send(value) table.
func (c *HttpContext) Send(value any) error {
	switch v := value.(type) {
	case nil:
		c.Reply(c.statusCode(204), PresetTextPlain, nil, nil)
		return nil
	case string:
		c.Reply(c.statusCode(200), PresetTextPlain, nil, []byte(v))
		return nil
	case []byte:
		c.Reply(c.statusCode(200), PresetOctetStream, nil, v)
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		c.Reply(c.statusCode(200), PresetJSON, nil, b)
		return nil
	}
}

func (c *HttpContext) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Reply(c.statusCode(200), PresetJSON, nil, b)
	return nil
}

func (c *HttpContext) SendText(s string) {
	c.Reply(c.statusCode(200), PresetTextPlain, nil, []byte(s))
}

func (c *HttpContext) SendBuffer(b []byte) {
	c.Reply(c.statusCode(200), PresetOctetStream, nil, b)
}

// SendError renders err as "<status> <reason>" / text-plain / err's
// message, per spec §7 user-visible failure behavior.
func (c *HttpContext) SendError(err error) {
	status, msg := statusAndMessage(err)
	c.Reply(status, PresetTextPlain, nil, []byte(msg))
}

// ---------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------

func (c *HttpContext) StartStreaming(status int, preset HeaderPreset, headers map[string]string) {
	if c.aborted || c.replied || c.streaming {
		return
	}
	c.streamer.begin(c.statusCode(status), preset, headers)
	c.streaming = true
}

func (c *HttpContext) Write(chunk []byte) bool {
	if c.aborted || !c.streaming {
		return false
	}
	return c.streamer.write(chunk)
}

func (c *HttpContext) TryEnd(chunk []byte, totalSize int) (ok, done bool) {
	if c.aborted || !c.streaming {
		return false, false
	}
	ok, done = c.streamer.tryEnd(chunk, totalSize)
	if done {
		c.streaming = false
		c.replied = true
	}
	return ok, done
}

func (c *HttpContext) End(chunk []byte) {
	if c.aborted {
		return
	}
	c.streamer.end(chunk)
	c.streaming = false
	c.replied = true
}

func (c *HttpContext) OnWritable(cb func(offset int)) {
	c.streamer.onWritable(cb)
}

func (c *HttpContext) GetWriteOffset() int {
	return c.streamer.getWriteOffset()
}

// Stream pipes producer into the response, blocking until it is
// exhausted, the context aborts, or an error occurs (spec §4.3).
func (c *HttpContext) Stream(producer io.Reader, status int, preset HeaderPreset, headers map[string]string) error {
	if c.aborted || c.replied || c.streaming {
		return nil
	}
	c.streaming = true
	err := c.streamer.stream(producer, c.statusCode(status), preset, headers)
	c.streaming = false
	c.replied = true
	return err
}

// ---------------------------------------------------------------------
// Lifecycle hooks
// ---------------------------------------------------------------------

// onAbort is invoked by the transport when the connection aborts.
func (c *HttpContext) onAbort() {
	if c.aborted {
		return
	}
	c.aborted = true
	c.streamer.writableCB = nil
	c.body.abort()
	c.streamer.state = streamClosed
	c.streamer.destroyProducer()
	c.finalize()
}

// finalize is the one-shot transition back to the pool; re-entrant calls
// (e.g. end -> finalize -> release -> clear -> a stray later callback
// calling finalize again) are silently ignored.
func (c *HttpContext) finalize() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()

	if c.server != nil {
		c.server.releaseHTTPContext(c)
	}
}

// onResolve is the handler-deferred success path.
func (c *HttpContext) onResolve(value any) {
	if c.done || c.aborted || c.replied {
		if !c.streaming {
			c.finalize()
		}
		return
	}
	if err := c.Send(value); err != nil {
		c.SendError(err)
		c.reportError(err)
	}
	if !c.streaming {
		c.finalize()
	}
}

// onReject is the handler-deferred error path.
func (c *HttpContext) onReject(err error) {
	if c.done || c.aborted {
		return
	}
	c.SendError(err)
	c.reportError(err)
	if !c.streaming {
		c.finalize()
	}
}

func (c *HttpContext) reportError(err error) {
	if c.server == nil || c.server.opts.OnHttpError == nil {
		return
	}
	safeCall(func() { c.server.opts.OnHttpError(c, err) })
}

// safeCall wraps user-hook invocations; panics are silently discarded
// (spec §7: "exceptions in error hooks are silently discarded").
func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
