package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultPort           = 6000
	defaultMaxBodySizeMiB = 1
	minMaxBodySizeMiB     = 1
	maxMaxBodySizeMiB     = 64
	defaultWsIdleTimeout  = 15
	minWsIdleTimeout      = 5

	defaultHTTPPoolSize = 4096
	defaultWsPoolSize   = 4096
)

// Deferred is returned by a RouteHandler that completes its HttpContext
// itself, either later from a goroutine it spawns or before returning,
// through ctx-level methods such as Send/Reply/Stream/End; those
// finalize the context once the response ends. Dispatch treats a
// Deferred return as "do nothing further" rather than auto-sending it.
var Deferred = deferredMarker{}

type deferredMarker struct{}

// WsPathConfig is one registered WebSocket endpoint.
type WsPathConfig struct {
	Path     string
	Handlers WsHandlers
}

// ServerOptions configures a Server (spec §6 "Server options").
type ServerOptions struct {
	Port           int
	MaxBodySizeMiB int

	// Exactly one of Routes or Router must be set.
	Routes []Route
	Router RouteHandler

	OnHttpError func(ctx *HttpContext, err error)

	WsRoutes []WsPathConfig
}

// Server owns route registration, dispatch, active-request bookkeeping,
// and the drain/close lifecycle (spec §4.7).
type Server struct {
	opts ServerOptions
	app  App

	httpPool *ContextPool[*HttpContext]
	wsPool   *ContextPool[*WsContext]

	activeHTTP int64
	activeWS   int64

	mu           sync.Mutex
	draining     bool
	listening    bool
	shutdownDone chan struct{}
	shutdownTmr  *time.Timer
}

// wsBinding is what the engine passes through ResponseWriter.Upgrade as
// userData; the Transport stores and returns it verbatim via Open/
// Message/Close so the engine can recover the WsContext without a side
// table (SPEC_FULL §9).
type wsBinding struct {
	ctx     *WsContext
	appData any
}

// NewServer validates opts, builds the context pools, and registers
// every route/ws-path against app. It does not start listening.
func NewServer(opts ServerOptions, app App) (*Server, error) {
	if (len(opts.Routes) == 0) == (opts.Router == nil) {
		return nil, fmt.Errorf("engine: exactly one of Routes or Router must be set")
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("engine: port %d out of range [1,65535]", opts.Port)
	}
	if opts.MaxBodySizeMiB == 0 {
		opts.MaxBodySizeMiB = defaultMaxBodySizeMiB
	}
	if opts.MaxBodySizeMiB < minMaxBodySizeMiB || opts.MaxBodySizeMiB > maxMaxBodySizeMiB {
		return nil, fmt.Errorf("engine: maxBodySize %d MiB out of range [%d,%d]", opts.MaxBodySizeMiB, minMaxBodySizeMiB, maxMaxBodySizeMiB)
	}
	for _, rt := range opts.Routes {
		if !validMethod(rt.Method) {
			return nil, fmt.Errorf("engine: invalid method %q for route %q", rt.Method, rt.Path)
		}
		if !strings.HasPrefix(rt.Path, "/") {
			return nil, fmt.Errorf("engine: route path %q must begin with /", rt.Path)
		}
	}
	for i := range opts.WsRoutes {
		wr := &opts.WsRoutes[i]
		if !strings.HasPrefix(wr.Path, "/") {
			return nil, fmt.Errorf("engine: ws path %q must begin with /", wr.Path)
		}
		if wr.Handlers.IdleTimeoutSec == 0 {
			wr.Handlers.IdleTimeoutSec = defaultWsIdleTimeout
		}
		if wr.Handlers.IdleTimeoutSec < minWsIdleTimeout {
			return nil, fmt.Errorf("engine: ws idle timeout for %q must be >= %d seconds", wr.Path, minWsIdleTimeout)
		}
	}

	s := &Server{opts: opts, app: app}

	var httpPool *ContextPool[*HttpContext]
	httpPool = newContextPool(defaultHTTPPoolSize, func() *HttpContext { return newHttpContext(httpPool) })
	s.httpPool = httpPool

	var wsPool *ContextPool[*WsContext]
	wsPool = newContextPool(defaultWsPoolSize, func() *WsContext { return newWsContext(wsPool) })
	s.wsPool = wsPool

	s.registerRoutes()
	return s, nil
}

func validMethod(m string) bool {
	switch strings.ToLower(m) {
	case "get", "post", "put", "delete", "patch", "options", "head", "any":
		return true
	default:
		return false
	}
}

func (s *Server) maxBodyBytes() int {
	return s.opts.MaxBodySizeMiB * 1024 * 1024
}

func (s *Server) registerRoutes() {
	if s.opts.Router != nil {
		s.app.Any("/*", s.dispatch(s.opts.Router))
	} else {
		for _, rt := range s.opts.Routes {
			h := s.dispatch(rt.Handler)
			switch strings.ToLower(rt.Method) {
			case "get":
				s.app.Get(rt.Path, h)
			case "post":
				s.app.Post(rt.Path, h)
			case "put":
				s.app.Put(rt.Path, h)
			case "delete":
				s.app.Delete(rt.Path, h)
			case "patch":
				s.app.Patch(rt.Path, h)
			case "options":
				s.app.Options(rt.Path, h)
			case "head":
				s.app.Head(rt.Path, h)
			case "any":
				s.app.Any(rt.Path, h)
			}
		}
	}

	for i := range s.opts.WsRoutes {
		wr := s.opts.WsRoutes[i]
		s.app.Ws(wr.Path, s.buildWsRouteConfig(wr.Handlers))
	}
}

// ---------------------------------------------------------------------
// HTTP dispatch (spec §4.7 "Dispatch")
// ---------------------------------------------------------------------

func (s *Server) dispatch(handler RouteHandler) func(w ResponseWriter, r Request) {
	return func(w ResponseWriter, r Request) {
		if s.isDraining() {
			w.Cork(func() {
				w.WriteStatus(StatusLine(503))
				w.WriteHeader("Connection", "close")
			})
			w.End(nil)
			return
		}

		atomic.AddInt64(&s.activeHTTP, 1)
		ctx := s.httpPool.acquire()
		ctx.resetFor(w, r, s, s.maxBodyBytes())
		w.OnAborted(func() { ctx.onAbort() })

		value, err := s.invokeHandler(handler, ctx)
		if err != nil {
			ctx.onReject(err)
			return
		}
		if _, deferred := value.(deferredMarker); deferred {
			return
		}
		ctx.onResolve(value)
	}
}

// invokeHandler calls handler, converting a panic into the reject path
// (spec §4.7 step 5: "If it throws, treat as an immediate reject path").
func (s *Server) invokeHandler(handler RouteHandler, ctx *HttpContext) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("engine: handler panic: %v", rec)
			}
		}
	}()
	return handler(ctx)
}

func (s *Server) releaseHTTPContext(ctx *HttpContext) {
	s.httpPool.release(ctx)
	atomic.AddInt64(&s.activeHTTP, -1)
	s.checkDrainComplete()
}

// ---------------------------------------------------------------------
// WebSocket lifecycle (spec §4.7 "Upgrade (WS)" / "WS lifecycle")
// ---------------------------------------------------------------------

func (s *Server) buildWsRouteConfig(handlers WsHandlers) WsRouteConfig {
	return WsRouteConfig{
		Upgrade:        s.wsUpgradeHandler(handlers),
		Open:           s.wsOpenHandler(handlers),
		Message:        s.wsMessageHandler(handlers),
		Close:          s.wsCloseHandler(handlers),
		Error:          s.wsErrorHandler(handlers),
		IdleTimeoutSec: handlers.IdleTimeoutSec,
	}
}

func (s *Server) wsUpgradeHandler(handlers WsHandlers) func(w ResponseWriter, r Request) {
	return func(w ResponseWriter, r Request) {
		if s.isDraining() {
			w.Cork(func() {
				w.WriteStatus(StatusLine(503))
				w.WriteHeader("Connection", "close")
			})
			w.End(nil)
			return
		}

		aborted := false
		meta := &UpgradeMeta{
			Url:          r.GetUrl(),
			GetHeader:    r.GetHeader,
			GetQuery:     r.GetQuery,
			GetParameter: r.GetParameter,
			IsAborted:    func() bool { return aborted },
		}
		meta.Ip = w.GetProxiedRemoteAddressAsText()
		if meta.Ip == "" {
			meta.Ip = w.GetRemoteAddressAsText()
		}
		w.OnAborted(func() { aborted = true })

		var result *UpgradeResult
		if handlers.OnUpgrade != nil {
			var err error
			result, err = handlers.OnUpgrade(meta)
			if err != nil {
				result = nil
			}
		} else {
			result = &UpgradeResult{IsAllowed: true}
		}

		// Open Question resolution: a nil/zero result is a deny.
		if result == nil || !result.IsAllowed {
			w.Cork(func() {
				w.WriteStatus(StatusLine(403))
			})
			w.End(nil)
			return
		}
		if aborted {
			return
		}

		wsCtx := s.wsPool.acquire()
		binding := &wsBinding{ctx: wsCtx, appData: result.UserData}
		if err := w.Upgrade(binding, "", "", ""); err != nil {
			s.wsPool.release(wsCtx)
		}
	}
}

func (s *Server) wsOpenHandler(handlers WsHandlers) func(ws WebSocket, userData any) {
	return func(ws WebSocket, userData any) {
		binding, ok := userData.(*wsBinding)
		if !ok {
			return
		}
		binding.ctx.resetFor(s, ws, binding.appData, handlers)

		if s.isDraining() {
			binding.ctx.End(1001, "server draining")
			return
		}

		atomic.AddInt64(&s.activeWS, 1)
		if handlers.OnOpen != nil {
			safeCall(func() { handlers.OnOpen(binding.ctx) })
		}
	}
}

func (s *Server) wsMessageHandler(handlers WsHandlers) func(ws WebSocket, data []byte, binary bool, userData any) {
	return func(ws WebSocket, data []byte, binary bool, userData any) {
		binding, ok := userData.(*wsBinding)
		if !ok || handlers.OnMessage == nil {
			return
		}
		safeCall(func() { handlers.OnMessage(binding.ctx, data, binary) })
	}
}

func (s *Server) wsErrorHandler(handlers WsHandlers) func(ws WebSocket, err error, userData any) {
	return func(ws WebSocket, err error, userData any) {
		binding, ok := userData.(*wsBinding)
		if !ok || handlers.OnError == nil {
			return
		}
		safeCall(func() { handlers.OnError(binding.ctx, err) })
	}
}

func (s *Server) wsCloseHandler(handlers WsHandlers) func(ws WebSocket, code int, reason string, userData any) {
	return func(ws WebSocket, code int, reason string, userData any) {
		binding, ok := userData.(*wsBinding)
		if !ok {
			return
		}
		if handlers.OnClose != nil {
			safeCall(func() { handlers.OnClose(binding.ctx, code, reason) })
		}
		s.wsPool.release(binding.ctx)
		atomic.AddInt64(&s.activeWS, -1)
		s.checkDrainComplete()
	}
}

// ---------------------------------------------------------------------
// Publish
// ---------------------------------------------------------------------

// Publish fans a message out to every socket subscribed to topic. It
// returns false if the app isn't listening yet.
func (s *Server) Publish(topic string, msg []byte, binary bool) bool {
	if !s.isListening() {
		return false
	}
	return s.app.Publish(topic, msg, binary)
}

func (s *Server) NumSubscribers(topic string) int {
	return s.app.NumSubscribers(topic)
}

// ---------------------------------------------------------------------
// Lifecycle: listen / drain / close
// ---------------------------------------------------------------------

func (s *Server) Listen() error {
	err := s.app.Listen(s.opts.Port, func(any) {
		s.mu.Lock()
		s.listening = true
		s.mu.Unlock()
	})
	return err
}

func (s *Server) isListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Server) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// Shutdown begins a graceful drain: new HTTP requests get 503, new WS
// opens get closed with 1001, and this call blocks until every
// in-flight request/connection finishes or timeout elapses (at which
// point Close forces an immediate stop).
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.draining {
		done := s.shutdownDone
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	s.draining = true
	done := make(chan struct{})
	s.shutdownDone = done
	idle := atomic.LoadInt64(&s.activeHTTP) == 0 && atomic.LoadInt64(&s.activeWS) == 0
	if !idle && timeout > 0 {
		s.shutdownTmr = time.AfterFunc(timeout, func() { _ = s.Close() })
	}
	s.mu.Unlock()

	if idle {
		s.completeShutdown()
	}
	<-done
	return nil
}

func (s *Server) checkDrainComplete() {
	s.mu.Lock()
	draining := s.draining
	hasDone := s.shutdownDone != nil
	s.mu.Unlock()
	if !draining || !hasDone {
		return
	}
	if atomic.LoadInt64(&s.activeHTTP) == 0 && atomic.LoadInt64(&s.activeWS) == 0 {
		s.completeShutdown()
	}
}

func (s *Server) completeShutdown() {
	s.mu.Lock()
	if s.shutdownTmr != nil {
		s.shutdownTmr.Stop()
		s.shutdownTmr = nil
	}
	done := s.shutdownDone
	s.shutdownDone = nil
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
	_ = s.app.Close()
}

// Close forces an immediate stop: idempotent, cancels any pending
// shutdown timer, and resolves any outstanding Shutdown call.
func (s *Server) Close() error {
	s.mu.Lock()
	s.draining = true
	if s.shutdownTmr != nil {
		s.shutdownTmr.Stop()
		s.shutdownTmr = nil
	}
	done := s.shutdownDone
	s.shutdownDone = nil
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
	return s.app.Close()
}

// ActiveHTTP and ActiveWS report current in-flight counts (for metrics).
func (s *Server) ActiveHTTP() int64 { return atomic.LoadInt64(&s.activeHTTP) }
func (s *Server) ActiveWS() int64   { return atomic.LoadInt64(&s.activeWS) }
