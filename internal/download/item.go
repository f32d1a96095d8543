package download

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bulkdl/internal/models"
)

// item is the engine-side record of one download. It is only touched on the loop.
type item struct {
	id           string
	fileName     string
	folderPath   string
	link         string
	status       models.Status
	fileSize     int64
	fileType     string
	created      time.Time
	errorMessage string
	errorKind    string

	filePath     string
	file         *os.File
	resp         *http.Response
	cancel       context.CancelCauseFunc
	hasRequest   bool
	generation   uint64
	lastProgress time.Time
}

func (it *item) snapshot(downloaded int64) models.Item {
	if it.status == models.StatusDownloaded {
		downloaded = it.fileSize
	}
	return models.Item{
		Id:           it.id,
		FileName:     it.fileName,
		FolderPath:   it.folderPath,
		Link:         it.link,
		Status:       it.status,
		FileSize:     it.fileSize,
		FileType:     it.fileType,
		Downloaded:   downloaded,
		Created:      it.created,
		ErrorMessage: it.errorMessage,
		ErrorKind:    it.errorKind,
	}
}

func (it *item) pausable() bool {
	return it.status == models.StatusPending || it.status == models.StatusDownloading
}

func (it *item) cancellable() bool {
	return it.status.Incomplete()
}

func (it *item) retryable() bool {
	return it.status == models.StatusError || it.status == models.StatusCancelled
}

// halt detaches the item from its current attempt. The file and the ledger
// entry are left alone so the transfer can be resumed.
func (d *Downloader) halt(it *item) {
	it.hasRequest = false
	it.generation++
	it.resp = nil
	if it.cancel != nil {
		it.cancel(errHalted)
		it.cancel = nil
	}
}

// clearRequest halts the item, closes its file, optionally deletes it from
// disk, and drops the ledger entry.
func (d *Downloader) clearRequest(it *item, deleteFile bool) {
	d.halt(it)

	if it.file != nil {
		if err := it.file.Close(); err != nil {
			slog.Warn("Failed to close file", "id", it.id, "error", err)
		}
		it.file = nil
	}

	if deleteFile && it.filePath != "" {
		if err := os.Remove(it.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to delete partial file", "id", it.id, "path", it.filePath, "error", err)
		}
		it.filePath = ""
	}

	delete(d.ledger, it.id)
}

func (d *Downloader) markError(it *item, err error) {
	it.status = models.StatusError
	it.errorMessage = err.Error()
	if kind := kindOf(err); kind != nil {
		it.errorKind = kind.Error()
	}
	d.clearRequest(it, true)

	slog.Error("Download failed", "id", it.id, "name", it.fileName, "error", err)
	d.notify(models.EventError, it)
	d.pump()
}

func (d *Downloader) markDownloaded(it *item) {
	it.hasRequest = false
	it.generation++
	it.resp = nil
	if it.cancel != nil {
		it.cancel(nil)
		it.cancel = nil
	}

	if err := it.file.Close(); err != nil {
		it.file = nil
		d.markError(it, wrapFS(err))
		return
	}
	it.file = nil

	if downloaded := d.ledger[it.id]; it.fileSize <= 0 || downloaded > it.fileSize {
		it.fileSize = downloaded
	}
	delete(d.ledger, it.id)
	it.status = models.StatusDownloaded

	slog.Info("Download complete", "id", it.id, "name", it.fileName, "size", it.fileSize)
	d.notify(models.EventFinish, it)
	d.pump()
}
