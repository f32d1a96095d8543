package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"bulkdl/internal/config"
	"bulkdl/internal/download"
	"bulkdl/internal/handler"
	"bulkdl/internal/metrics"
	"bulkdl/internal/storage"
	"bulkdl/internal/websocket"
)

const snapshotInterval = 10 * time.Second

func main() {
	cfg := config.LoadConfig()
	SetupLogger(cfg.LogLevel)

	settings, err := config.LoadSettings(cfg.DataDir, cfg.DownloadDir)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	history, err := storage.New(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to open history", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	downloader := download.New(settings.Get().DefaultSaveFolder, download.WithConfig(settings.Get().Engine()))
	downloader.Start()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := websocket.NewHub()
	go hub.Run(ctx)
	go hub.StartTicker(ctx, snapshotInterval, downloader.List)

	m := metrics.New(downloader.IncompleteCount)
	downloader.Subscribe(hub.BroadcastEvent)
	downloader.Subscribe(history.Recorder(settings.SaveHistory))
	downloader.Subscribe(m.Observe)

	r := handler.NewRouter(handler.Dependencies{
		Downloader: downloader,
		History:    history,
		Settings:   settings,
		WsHandler:  hub.WsHandler,
		Metrics:    m.Handler(),
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		downloader.Close()
		stop()
		done <- true
	}()

	slog.Info("Server starting", "port", cfg.Port, "downloads", settings.Get().DefaultSaveFolder)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("Server exited")
}

func SetupLogger(level slog.Level) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		AddSource:  true,
	})

	slog.SetDefault(slog.New(handler))
}
