package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aarso/diaa/internal/app"
	"github.com/aarso/diaa/internal/config"
	"github.com/aarso/diaa/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := observability.NewLogger("info", "json")
		boot.Fatal().Err(err).Msg("config error")
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	built.Sessions.StartJanitor(gctx, 5*time.Second)

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.BindAddr).
			Str("speech_host", cfg.SpeechHost).
			Str("voice_provider", built.Voice.Provider).
			Str("voice_detail", built.Voice.Detail).
			Str("store", built.Store.Mode()).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		exitCode = 1
	}
	if err := built.Cleanup(); err != nil {
		logger.Error().Err(err).Msg("cleanup failed")
		exitCode = 1
	}
	logger.Info().Msg("shutdown complete")
	os.Exit(exitCode)
}
