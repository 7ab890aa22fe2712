// Package engine implements the request/response core described in the
// project spec: per-request context, body parsing, response streaming,
// object pooling, and server lifecycle. It never imports net/http — it
// only depends on the Transport interfaces declared in this file, so any
// non-blocking event-driven socket layer can be wired in behind them.
package engine

// ResponseWriter is the per-response handle a Transport hands the engine.
// Its contract is the spec's §6 "Transport (consumed)" surface.
type ResponseWriter interface {
	// OnData registers the sink invoked once per ingested body chunk.
	// isLast is true on the terminal chunk (which may itself carry data).
	OnData(cb func(chunk []byte, isLast bool))

	// OnAborted registers the callback invoked at most once, when the
	// peer disconnects before the response completed.
	OnAborted(cb func())

	// OnWritable arms a one-shot callback invoked once the socket is
	// writable again after a partial write. The callback reports
	// whether it fully handled the event; the transport keeps the hook
	// installed regardless; the engine always returns true here since
	// a single arming is consumed per call.
	OnWritable(cb func(offset int) bool)

	// Cork batches every write inside fn into one wire boundary.
	Cork(fn func())

	WriteStatus(status string)
	WriteHeader(name, value string)

	// Write emits a chunk, returning true if it was fully queued.
	Write(chunk []byte) bool

	// TryEnd emits a final chunk declaring the total response size,
	// returning (ok, done); done means the response fully flushed.
	TryEnd(chunk []byte, totalSize int) (ok bool, done bool)

	// End closes the response unconditionally.
	End(chunk []byte)

	GetWriteOffset() int
	GetRemoteAddressAsText() string
	GetProxiedRemoteAddressAsText() string

	// Upgrade promotes this response to a WebSocket, handing userData
	// through to the WebSocket's GetUserData().
	Upgrade(userData any, key, protocol, extensions string) error
}

// Request is the per-request handle a Transport hands the engine.
type Request interface {
	GetMethod() string
	GetUrl() string
	GetHeader(name string) string
	GetQuery(name string) string
	// GetParameter resolves a route parameter by position or name,
	// matching the transport's native router (e.g. chi's :name).
	GetParameter(indexOrName string) string
}

// WebSocket is a live, transport-owned socket handle.
type WebSocket interface {
	GetUserData() any
	Send(data []byte, binary bool) bool
	End(code int, reason string)
	Subscribe(topic string) bool
	Unsubscribe(topic string) bool
}

// UpgradeMeta is passed to the user's onUpgrade hook.
type UpgradeMeta struct {
	Url           string
	Ip            string
	GetHeader     func(name string) string
	GetQuery      func(name string) string
	GetParameter  func(indexOrName string) string
	IsAborted     func() bool
}

// UpgradeResult is returned from the user's onUpgrade hook.
type UpgradeResult struct {
	IsAllowed bool
	UserData  any
}

// RouteHandler is a user handler. It may return nil, a value to be
// dispatched via HttpContext.Send, or drive the response itself and
// return nil. Returning a non-nil error is equivalent to the handler
// having thrown: the context completes via its reject path.
type RouteHandler func(ctx *HttpContext) (any, error)

// WsHandlers bundles the optional WebSocket lifecycle hooks.
type WsHandlers struct {
	IdleTimeoutSec int
	OnUpgrade      func(meta *UpgradeMeta) (*UpgradeResult, error)
	OnOpen         func(ws *WsContext)
	OnMessage      func(ws *WsContext, data []byte, binary bool)
	OnClose        func(ws *WsContext, code int, reason string)
	OnDrain        func(ws *WsContext)
	OnSubscription func(ws *WsContext, topic string, newCount, oldCount int)
	OnError        func(ws *WsContext, err error)
}

// Route is one (method, path, handler) registration.
type Route struct {
	Method  string
	Path    string
	Handler RouteHandler
}

// App is the listening application a Transport provides.
type App interface {
	Get(path string, handler func(w ResponseWriter, r Request))
	Post(path string, handler func(w ResponseWriter, r Request))
	Put(path string, handler func(w ResponseWriter, r Request))
	Delete(path string, handler func(w ResponseWriter, r Request))
	Patch(path string, handler func(w ResponseWriter, r Request))
	Options(path string, handler func(w ResponseWriter, r Request))
	Head(path string, handler func(w ResponseWriter, r Request))
	Any(path string, handler func(w ResponseWriter, r Request))

	Ws(path string, cfg WsRouteConfig)

	Listen(port int, cb func(listenToken any)) error
	Close() error

	Publish(topic string, msg []byte, binary bool) bool
	NumSubscribers(topic string) int
}

// WsRouteConfig is what the engine hands a Transport to drive one
// WebSocket path. Upgrade receives the raw HTTP request/response and
// performs the full handshake decision, calling ResponseWriter.Upgrade
// itself when allowed (or writing a denial response when not) — this is
// where the engine's drain check and onUpgrade user hook live. Once a
// connection is open, the Transport owns reading frames off the wire for
// that connection's lifetime and calls Open once, Message per frame, and
// Close exactly once, always passing along whatever userData value the
// engine handed to ResponseWriter.Upgrade (spec §9: the WebSocket-to-
// context mapping travels as this value, not a hidden side table).
type WsRouteConfig struct {
	Upgrade func(w ResponseWriter, r Request)
	Open    func(ws WebSocket, userData any)
	Message func(ws WebSocket, data []byte, binary bool, userData any)
	Close   func(ws WebSocket, code int, reason string, userData any)

	// Error is invoked by the Transport when its read/write loop for this
	// connection observes a non-clean-close failure (spec §6 ws handler
	// bundle's onError).
	Error func(ws WebSocket, err error, userData any)

	// IdleTimeoutSec is the validated/defaulted wsIdleTimeoutSec from the
	// matching WsHandlers (spec §5: "only the WS idle timeout [is]
	// observed"); the Transport uses it to size its read deadline/ping
	// period instead of a fixed constant.
	IdleTimeoutSec int
}
