package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/app"
	"github.com/zhouzirui/enrique/backend/internal/config"
	"github.com/zhouzirui/enrique/backend/internal/handler"
	"github.com/zhouzirui/enrique/backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	services, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := services.Close(); err != nil {
			zl.Warn("close services", zap.Error(err))
		}
	}()

	zl.Info("calendar backend ready",
		zap.String("backend", services.Calendar.Name()),
		zap.String("timezone", cfg.Scheduling.Timezone),
	)

	router := handler.NewRouter(services.RouterDeps())

	startServer(ctx, cfg.Server, router, zl)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zl *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zl.Info("Enrique backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
