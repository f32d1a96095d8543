package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"bulkdl/internal/config"
	"bulkdl/internal/download"
	"bulkdl/internal/models"
	"bulkdl/internal/storage"
	"bulkdl/internal/utils"
)

const maxBodySize = 1 << 20

type submitRequest struct {
	Requests []models.DownloadRequest `json:"requests"`
}

type idsRequest struct {
	Ids []string `json:"ids"`
}

type idsResponse struct {
	Ids []string `json:"ids"`
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
}

func ListDownloadsHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, itemsResponse{Items: downloader.List()})
	}
}

func SubmitHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if len(req.Requests) == 0 {
			writeError(w, http.StatusBadRequest, "requests are required")
			return
		}
		for i := range req.Requests {
			req.Requests[i].Link = strings.TrimSpace(req.Requests[i].Link)
			if req.Requests[i].Link == "" {
				writeError(w, http.StatusBadRequest, "link is required")
				return
			}
		}

		items := downloader.Submit(req.Requests...)
		slog.Info("Submitted downloads", "count", len(items))
		writeJSON(w, http.StatusCreated, itemsResponse{Items: items})
	}
}

// ImportHandler submits every link found in a plain-text list or an HTML page.
func ImportHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var base *url.URL
		if raw := r.URL.Query().Get("base"); raw != "" {
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				writeError(w, http.StatusBadRequest, "base must be an absolute url")
				return
			}
			base = parsed
		}

		links, err := utils.ExtractLinks(r.Body, r.Header.Get("Content-Type"), base)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(links) == 0 {
			writeError(w, http.StatusBadRequest, "no links found")
			return
		}

		saveFolder := r.URL.Query().Get("saveFolder")
		requests := make([]models.DownloadRequest, 0, len(links))
		for _, link := range links {
			requests = append(requests, models.DownloadRequest{Link: link, SaveFolder: saveFolder})
		}

		items := downloader.Submit(requests...)
		slog.Info("Imported downloads", "count", len(items))
		writeJSON(w, http.StatusCreated, itemsResponse{Items: items})
	}
}

func GetDownloadHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		items := downloader.Items(id)
		if len(items) == 0 {
			writeError(w, http.StatusNotFound, "download not found")
			return
		}
		writeJSON(w, http.StatusOK, items[0])
	}
}

func DownloadedBytesHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "downloaded": downloader.DownloadedBytes(id)})
	}
}

func IncompleteCountHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"count": downloader.IncompleteCount()})
	}
}

func PauseHandler(downloader *download.Downloader) http.HandlerFunc {
	return idsCommand(downloader.Pause)
}

func ResumeHandler(downloader *download.Downloader) http.HandlerFunc {
	return idsCommand(downloader.Resume)
}

// CancelHandler cancels the items and records them in the history.
func CancelHandler(downloader *download.Downloader, history *storage.Storage, settings *config.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, ok := decodeIDs(w, r)
		if !ok {
			return
		}

		cancelled := downloader.Cancel(ids...)
		if len(cancelled) > 0 && settings.SaveHistory() {
			if err := history.Save(downloader.Items(cancelled...)...); err != nil {
				slog.Error("Failed to record cancelled downloads", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, idsResponse{Ids: cancelled})
	}
}

func RetryHandler(downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, ok := decodeIDs(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, itemsResponse{Items: downloader.Retry(ids...)})
	}
}

// RemoveHandler drops items from the queue and the history. Without ids the
// whole queue is removed, but the history is kept.
func RemoveHandler(downloader *download.Downloader, history *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, ok := decodeIDs(w, r)
		if !ok {
			return
		}

		removed := downloader.Remove(ids...)
		fromHistory, err := history.Delete(ids...)
		if err != nil {
			slog.Error("Failed to delete history", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete history")
			return
		}
		writeJSON(w, http.StatusOK, idsResponse{Ids: union(removed, fromHistory)})
	}
}

func HistoryHandler(history *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := history.List()
		if err != nil {
			slog.Error("Failed to list history", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list history")
			return
		}
		writeJSON(w, http.StatusOK, itemsResponse{Items: items})
	}
}

func GetConfigHandler(settings *config.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, settings.Get())
	}
}

// UpdateConfigHandler merges the valid fields of the body into the settings
// and loads them into the running engine.
func UpdateConfigHandler(settings *config.SettingsStore, downloader *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		updated, err := settings.Update(download.ParseConfigPatch(body))
		if err != nil {
			slog.Error("Failed to save settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		downloader.LoadConfig(updated.EnginePatch())
		downloader.SetDefaultFolder(updated.DefaultSaveFolder)
		writeJSON(w, http.StatusOK, updated)
	}
}

func idsCommand(command func(ids ...string) []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, ok := decodeIDs(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, idsResponse{Ids: command(ids...)})
	}
}

// decodeIDs reads an optional {"ids": [...]} body. An empty body selects
// every item.
func decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req idsRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}
	return req.Ids, true
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range append(append([]string{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
