// Command signaling runs the WebRTC lobby signaling server: a gin HTTP
// process exposing /healthz, /version, and the /socket/websocket upgrade
// route, bootstrapped the way the teacher's api/cmd/main.go wires its
// router, HTTP server, and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vsekai/signaling/internal/config"
	apperrors "github.com/vsekai/signaling/internal/errors"
	"github.com/vsekai/signaling/internal/httpapi"
	"github.com/vsekai/signaling/internal/logger"
	"github.com/vsekai/signaling/internal/signaling"
	"github.com/vsekai/signaling/internal/ws"
)

// version and gitCommit are set at link time with -ldflags, the way the
// teacher reports its own build metadata.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	engine := signaling.NewEngine(cfg.MaxLobbies, cfg.MaxPeers, cfg.SealGrace, logger.Bus())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(httpapi.RequestID())
	router.Use(apperrors.Recovery())
	router.Use(httpapi.StructuredLogger(logger.HTTP()))
	router.Use(apperrors.ErrorHandler())
	router.Use(httpapi.SecurityHeaders())

	httpapi.Register(router, httpapi.BuildInfo{Version: version, GitCommit: gitCommit})
	ws.NewServer(engine, logger.Conn()).Register(router)

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("signaling server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal, starting graceful shutdown")

	shutdownTimeout := 30 * time.Second
	if v := os.Getenv("SIGNALING_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			shutdownTimeout = d
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server stopped gracefully")
	}
}
