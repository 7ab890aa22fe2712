// Package nethttp is the concrete Transport (spec §6) built on
// net/http, go-chi/chi, go-chi/cors, and gorilla/websocket — the same
// stack kari/api/internal/api/router/router.go and
// kari/api/internal/api/handlers/websocket.go are built on. It is the
// one piece of this repository internal/engine does not import: the
// engine only ever sees the engine.App/ResponseWriter/Request/WebSocket
// interfaces this package implements.
package nethttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/veldra/ignis/internal/engine"
	appmw "github.com/veldra/ignis/internal/middleware"
	"github.com/veldra/ignis/internal/pubsub"
)

// Options configures the middleware pipeline a Transport installs ahead
// of engine dispatch, in the teacher's router.go ordering.
type Options struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64
	RateLimiter    *appmw.RateLimiter // nil disables rate limiting
}

// Transport wires a chi.Mux + http.Server + pubsub.Hub into the
// engine.App contract.
type Transport struct {
	mux    *chi.Mux
	srv    *http.Server
	hub    *pubsub.Hub
	logger *slog.Logger
}

func New(opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(appmw.StructuredLogger(logger))
	mux.Use(chimw.Recoverer)
	if opts.MaxBodyBytes > 0 {
		mux.Use(appmw.MaxBytes(opts.MaxBodyBytes))
	}
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Handler)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return &Transport{mux: mux, hub: pubsub.NewHub(), logger: logger}
}

var _ engine.App = (*Transport)(nil)

func (t *Transport) wrap(h func(w engine.ResponseWriter, r engine.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w, r, t.hub)
		h(rw, newRequest(r))
		<-rw.finished
	}
}

func (t *Transport) Get(path string, h func(engine.ResponseWriter, engine.Request))     { t.mux.Get(path, t.wrap(h)) }
func (t *Transport) Post(path string, h func(engine.ResponseWriter, engine.Request))    { t.mux.Post(path, t.wrap(h)) }
func (t *Transport) Put(path string, h func(engine.ResponseWriter, engine.Request))     { t.mux.Put(path, t.wrap(h)) }
func (t *Transport) Delete(path string, h func(engine.ResponseWriter, engine.Request))  { t.mux.Delete(path, t.wrap(h)) }
func (t *Transport) Patch(path string, h func(engine.ResponseWriter, engine.Request))   { t.mux.Patch(path, t.wrap(h)) }
func (t *Transport) Options(path string, h func(engine.ResponseWriter, engine.Request)) { t.mux.Options(path, t.wrap(h)) }
func (t *Transport) Head(path string, h func(engine.ResponseWriter, engine.Request))    { t.mux.Head(path, t.wrap(h)) }
func (t *Transport) Any(path string, h func(engine.ResponseWriter, engine.Request)) {
	t.mux.HandleFunc(path, t.wrap(h))
}

// Ws registers one WebSocket path. The initial request is handled by
// cfg.Upgrade (engine logic deciding allow/deny and performing the
// handshake via ResponseWriter.Upgrade); once upgraded, this package
// drives the connection's read loop and ping ticker itself, exactly the
// shape of the teacher's StreamDeploymentLogs/readPump/writePump.
func (t *Transport) Ws(path string, cfg engine.WsRouteConfig) {
	t.mux.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w, r, t.hub)
		rw.wsCfg = &cfg
		cfg.Upgrade(rw, newRequest(r))
		<-rw.finished
	})
}

func (t *Transport) Listen(port int, cb func(any)) error {
	t.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     t.mux,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout intentionally unset: streamed responses and long-
		// lived WebSocket connections must not be cut off by the server.
	}
	ln, err := net.Listen("tcp", t.srv.Addr)
	if err != nil {
		return err
	}
	cb(ln)
	go func() {
		if err := t.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("server crashed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Close() error {
	if t.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.srv.Shutdown(ctx)
}

func (t *Transport) Publish(topic string, msg []byte, binary bool) bool {
	return t.hub.Publish(topic, msg, binary)
}

func (t *Transport) NumSubscribers(topic string) int {
	return t.hub.NumSubscribers(topic)
}
