package download

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bulkdl/internal/models"
	"bulkdl/internal/utils"
)

// Submit queues one item per request. New items go to the front of the
// queue, ahead of older pending ones. The returned snapshots are taken
// before scheduling, so they are still pending.
func (d *Downloader) Submit(requests ...models.DownloadRequest) []models.Item {
	var out []models.Item
	d.exec(func() { out = d.submit(requests) })
	return out
}

func (d *Downloader) submit(requests []models.DownloadRequest) []models.Item {
	if len(requests) == 0 {
		return []models.Item{}
	}

	created := make([]*item, 0, len(requests))
	out := make([]models.Item, 0, len(requests))
	for _, req := range requests {
		it := &item{
			id:         uuid.NewString(),
			fileName:   utils.FileNameFromURL(req.Link, utils.DefaultFileName),
			folderPath: d.resolveFolder(req.SaveFolder),
			link:       req.Link,
			status:     models.StatusPending,
			created:    time.Now(),
		}
		created = append(created, it)
		out = append(out, it.snapshot(0))
		slog.Info("Queued", "id", it.id, "name", it.fileName, "folder", it.folderPath)
	}

	d.items = append(created, d.items...)
	d.pump()
	return out
}

// resolveFolder falls back to the default folder, creating it, when the
// requested one is empty or not an existing directory.
func (d *Downloader) resolveFolder(saveFolder string) string {
	if saveFolder != "" {
		if info, err := os.Stat(saveFolder); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(saveFolder); err == nil {
				return abs
			}
			return saveFolder
		}
		slog.Warn("Save folder unusable, using default", "folder", saveFolder)
	}

	if err := os.MkdirAll(d.defaultFolder, os.ModePerm); err != nil {
		slog.Error("Failed to create default folder", "path", d.defaultFolder, "error", err)
	}
	return d.defaultFolder
}

// Pump promotes pending items to active transfers up to the concurrency cap.
// Calling it without state changes has no effect.
func (d *Downloader) Pump() {
	d.exec(d.pump)
}

// pump may be re-entered from a transition it triggers; the nested call
// only schedules another pass.
func (d *Downloader) pump() {
	if d.pumping {
		d.repump = true
		return
	}
	d.pumping = true
	defer func() { d.pumping = false }()

	for {
		d.repump = false
		d.pumpOnce()
		if !d.repump {
			return
		}
	}
}

func (d *Downloader) pumpOnce() {
	active := d.countStatus(models.StatusDownloading)
	for i := 0; active < d.cfg.SameTimeDownloads && i < len(d.items); i++ {
		it := d.items[i]
		if it.status != models.StatusPending || it.hasRequest {
			continue
		}

		d.startTransfer(it, d.ledger[it.id])

		// An item rejected up front, e.g. for its protocol, holds no slot.
		if it.status != models.StatusError {
			active++
		}
	}
}

// Pause stops pending and downloading items, keeping partial files and the
// bytes received so far.
func (d *Downloader) Pause(ids ...string) []string {
	var affected []string
	d.exec(func() {
		affected = []string{}
		for _, it := range d.lookup(ids) {
			if !it.pausable() {
				continue
			}
			d.halt(it)
			it.status = models.StatusPaused
			affected = append(affected, it.id)
			slog.Info("Paused", "id", it.id, "downloaded", d.ledger[it.id])
		}
		d.pump()
	})
	return affected
}

// Resume puts paused items back into the queue as pending.
func (d *Downloader) Resume(ids ...string) []string {
	var affected []string
	d.exec(func() {
		affected = []string{}
		for _, it := range d.lookup(ids) {
			if it.status != models.StatusPaused {
				continue
			}
			it.status = models.StatusPending
			affected = append(affected, it.id)
			slog.Info("Resumed", "id", it.id, "offset", d.ledger[it.id])
		}
		d.pump()
	})
	return affected
}

// Cancel stops unfinished items and deletes their partial files.
func (d *Downloader) Cancel(ids ...string) []string {
	var affected []string
	d.exec(func() {
		affected = []string{}
		for _, it := range d.lookup(ids) {
			if !it.cancellable() {
				continue
			}
			d.clearRequest(it, true)
			it.status = models.StatusCancelled
			affected = append(affected, it.id)
			slog.Info("Cancelled", "id", it.id)
		}
		d.pump()
	})
	return affected
}

// Remove drops items from the queue. Files of items that did not finish
// downloading are deleted.
func (d *Downloader) Remove(ids ...string) []string {
	var removed []string
	d.exec(func() {
		removed = []string{}
		targets := make(map[string]bool)
		for _, it := range d.lookup(ids) {
			targets[it.id] = true
		}

		kept := d.items[:0]
		for _, it := range d.items {
			if !targets[it.id] {
				kept = append(kept, it)
				continue
			}
			d.clearRequest(it, it.status != models.StatusDownloaded)
			removed = append(removed, it.id)
			slog.Info("Removed", "id", it.id, "status", it.status)
		}
		clear(d.items[len(kept):])
		d.items = kept
		d.pump()
	})
	return removed
}

// Retry submits a fresh item for every failed or cancelled one. The old
// items are left as they are.
func (d *Downloader) Retry(ids ...string) []models.Item {
	var out []models.Item
	d.exec(func() {
		var requests []models.DownloadRequest
		for _, it := range d.lookup(ids) {
			if it.retryable() {
				requests = append(requests, models.DownloadRequest{Link: it.link, SaveFolder: it.folderPath})
			}
		}
		out = d.submit(requests)
	})
	return out
}

// Items returns snapshots of the given items in queue order.
func (d *Downloader) Items(ids ...string) []models.Item {
	out := []models.Item{}
	if len(ids) == 0 {
		return out
	}
	d.exec(func() {
		for _, it := range d.lookup(ids) {
			out = append(out, it.snapshot(d.ledger[it.id]))
		}
	})
	return out
}

// List returns snapshots of the whole queue in queue order.
func (d *Downloader) List() []models.Item {
	out := []models.Item{}
	d.exec(func() {
		for _, it := range d.items {
			out = append(out, it.snapshot(d.ledger[it.id]))
		}
	})
	return out
}

// DownloadedBytes reports the bytes received for id in the current attempt.
func (d *Downloader) DownloadedBytes(id string) int64 {
	var n int64
	d.exec(func() { n = d.ledger[id] })
	return n
}

// IncompleteCount counts pending, downloading and paused items.
func (d *Downloader) IncompleteCount() int {
	var n int
	d.exec(func() {
		for _, it := range d.items {
			if it.status.Incomplete() {
				n++
			}
		}
	})
	return n
}

func (d *Downloader) Config() Config {
	var cfg Config
	d.exec(func() { cfg = d.cfg })
	return cfg
}

// LoadConfig merges the valid fields of raw into the running config and
// schedules again, so a raised cap takes effect at once.
func (d *Downloader) LoadConfig(raw map[string]any) Config {
	var cfg Config
	d.exec(func() {
		d.cfg = d.cfg.Merge(raw)
		cfg = d.cfg
		slog.Info("Config loaded", "sameTimeDownloads", cfg.SameTimeDownloads, "overrideFile", cfg.OverrideFile,
			"maxDuplicationFileName", cfg.MaxDuplicationFileName, "timeout", cfg.Timeout)
		d.pump()
	})
	return cfg
}

// SetDefaultFolder changes the folder used by later submissions that name
// no usable folder of their own.
func (d *Downloader) SetDefaultFolder(path string) {
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	d.exec(func() { d.defaultFolder = path })
}

// lookup resolves ids to items in queue order; no ids means every item.
func (d *Downloader) lookup(ids []string) []*item {
	if len(ids) == 0 {
		return append([]*item(nil), d.items...)
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var found []*item
	for _, it := range d.items {
		if wanted[it.id] {
			found = append(found, it)
		}
	}
	return found
}

func (d *Downloader) countStatus(status models.Status) int {
	n := 0
	for _, it := range d.items {
		if it.status == status {
			n++
		}
	}
	return n
}
