package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bulkdl/internal/config"
	"bulkdl/internal/download"
	"bulkdl/internal/storage"
)

type Dependencies struct {
	Downloader *download.Downloader
	History    *storage.Storage
	Settings   *config.SettingsStore
	WsHandler  http.HandlerFunc
	Metrics    http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/downloads", ListDownloadsHandler(deps.Downloader))
	r.Post("/downloads", SubmitHandler(deps.Downloader))
	r.Delete("/downloads", RemoveHandler(deps.Downloader, deps.History))
	r.Post("/downloads/import", ImportHandler(deps.Downloader))
	r.Get("/downloads/incomplete", IncompleteCountHandler(deps.Downloader))
	r.Put("/downloads/pause", PauseHandler(deps.Downloader))
	r.Put("/downloads/resume", ResumeHandler(deps.Downloader))
	r.Put("/downloads/cancel", CancelHandler(deps.Downloader, deps.History, deps.Settings))
	r.Put("/downloads/retry", RetryHandler(deps.Downloader))
	r.Get("/downloads/{id}", GetDownloadHandler(deps.Downloader))
	r.Get("/downloads/{id}/bytes", DownloadedBytesHandler(deps.Downloader))

	r.Get("/history", HistoryHandler(deps.History))
	r.Get("/config", GetConfigHandler(deps.Settings))
	r.Put("/config", UpdateConfigHandler(deps.Settings, deps.Downloader))

	if deps.WsHandler != nil {
		r.Get("/ws", deps.WsHandler)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	return r
}
