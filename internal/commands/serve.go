package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"search-agent/internal/handlers"
)

func ServeAction(c *cli.Context) error {
	app, err := Bootstrap()
	if err != nil {
		return err
	}
	cfg, logger := app.Config, app.Logger
	if port := c.String("port"); port != "" {
		cfg.Port = port
	}

	logger.Info("Starting search-agent")

	store := NewResultStore(cfg, logger)
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	handler := handlers.New(cfg, app.Pipeline, store, app.Exporter, app.Fallback, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(handlers.RequestID(), handlers.AccessLog(logger), gin.Recovery())
	handler.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
