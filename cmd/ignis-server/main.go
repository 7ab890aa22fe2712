// Command ignis-server boots the HTTP/1.1 + WebSocket engine behind the
// net/http transport, the same boot shape as kari/api/cmd/kari-api's
// main.go minus the database/gRPC/crypto dependencies this server has
// no use for.
package main

import (
	"bytes"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/veldra/ignis/internal/config"
	"github.com/veldra/ignis/internal/engine"
	"github.com/veldra/ignis/internal/middleware"
	"github.com/veldra/ignis/internal/nethttp"
)

type echoRequest struct {
	Message string `json:"message" validate:"required"`
}

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger.Info("booting ignis server", slog.String("environment", cfg.Environment))

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 5*time.Minute)
	stopJanitor := limiter.StartJanitor(time.Minute)
	defer stopJanitor()

	app := nethttp.New(nethttp.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   int64(cfg.MaxBodySizeMiB) * 1024 * 1024,
		RateLimiter:    limiter,
	})

	srv, err := engine.NewServer(engine.ServerOptions{
		Port:           cfg.Port,
		MaxBodySizeMiB: cfg.MaxBodySizeMiB,
		Routes: []engine.Route{
			{Method: "GET", Path: "/healthz", Handler: healthHandler},
			{Method: "POST", Path: "/echo", Handler: echoHandler},
			{Method: "GET", Path: "/stream", Handler: streamHandler},
		},
		WsRoutes: []engine.WsPathConfig{
			{Path: "/ws/echo", Handlers: engine.WsHandlers{
				IdleTimeoutSec: cfg.WsIdleTimeout,
				OnUpgrade: func(meta *engine.UpgradeMeta) (*engine.UpgradeResult, error) {
					return &engine.UpgradeResult{IsAllowed: true}, nil
				},
				OnOpen: func(ws *engine.WsContext) {
					ws.Subscribe("broadcast")
				},
				OnMessage: func(ws *engine.WsContext, data []byte, binary bool) {
					_ = ws.Send(data, binary)
				},
				OnClose: func(ws *engine.WsContext, code int, reason string) {
					logger.Info("ws closed", slog.Int("code", code), slog.String("reason", reason))
				},
			}},
		},
		OnHttpError: func(ctx *engine.HttpContext, err error) {
			logger.Error("request error", slog.String("error", err.Error()), slog.String("request_id", ctx.RequestID()))
		},
	}, app)
	if err != nil {
		logger.Error("invalid server configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Listen(); err != nil {
			logger.Error("server crashed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()
	logger.Info("ignis server active", slog.Int("port", cfg.Port))

	<-stop
	logger.Info("shutting down")
	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error("forced shutdown", slog.String("error", err.Error()))
	}
	logger.Info("ignis server shutdown complete")
}

func healthHandler(ctx *engine.HttpContext) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

func echoHandler(ctx *engine.HttpContext) (any, error) {
	var req echoRequest
	if err := ctx.Bind(&req); err != nil {
		return nil, err
	}
	return echoRequest{Message: req.Message}, nil
}

// streamHandler demonstrates the chunked-streaming surface (spec §4.3)
// by piping a small buffer back through an io.Reader producer.
func streamHandler(ctx *engine.HttpContext) (any, error) {
	payload := bytes.NewBufferString("streamed response body\n")
	if err := ctx.Stream(payload, 200, engine.PresetTextPlain, nil); err != nil {
		return nil, err
	}
	return engine.Deferred, nil
}
