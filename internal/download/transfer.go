package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"bulkdl/internal/models"
	"bulkdl/internal/utils"
)

var supportedProtocols = map[string]bool{"http": true, "https": true}

// transfer is one request/response attempt for an item. Only its goroutine
// touches ctx and watchdog; item state is reached through the loop.
type transfer struct {
	it         *item
	generation uint64
	offset     int64
	ctx        context.Context
	watchdog   *watchdog
}

func (d *Downloader) startTransfer(it *item, offset int64) {
	protocol := utils.Protocol(it.link)
	if !supportedProtocols[protocol] {
		d.markError(it, fmt.Errorf("%w: the %q protocol is not supported", ErrUnsupportedProtocol, protocol))
		return
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, it.link, nil)
	if err != nil {
		cancel(err)
		d.markError(it, fmt.Errorf("%w: %v", ErrRequest, err))
		return
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	it.generation++
	it.cancel = cancel
	it.hasRequest = true
	it.status = models.StatusDownloading

	t := &transfer{
		it:         it,
		generation: it.generation,
		offset:     offset,
		ctx:        ctx,
		watchdog:   newWatchdog(d.cfg.Timeout, cancel),
	}

	slog.Info("Downloading", "id", it.id, "link", it.link, "offset", offset)
	go d.run(t, req)
}

// run drives the network side of an attempt. Each step is handed to the
// loop, which discards it when the attempt was superseded.
func (d *Downloader) run(t *transfer, req *http.Request) {
	defer t.watchdog.stop()

	t.watchdog.arm(ErrRequestTimeout)
	resp, err := d.client.Do(req)
	fired := t.watchdog.stop()
	if err != nil {
		err = classify(t.ctx, err, ErrRequest)
		d.exec(func() { d.onFailure(t, err) })
		return
	}
	defer resp.Body.Close()

	// The headers made it, but the context is already gone.
	if fired {
		d.exec(func() { d.reissue(t) })
		return
	}

	var proceed bool
	if !d.exec(func() { proceed = d.onResponse(t, resp) }) || !proceed {
		return
	}

	buf := make([]byte, chunkSize)
	for {
		t.watchdog.arm(ErrResponseTimeout)
		n, rerr := resp.Body.Read(buf)
		fired := t.watchdog.stop()

		if n > 0 {
			var keep bool
			if !d.exec(func() { keep = d.onChunk(t, buf[:n]) }) || !keep {
				return
			}
		}

		if errors.Is(rerr, io.EOF) {
			d.exec(func() { d.onComplete(t) })
			return
		}
		if rerr != nil {
			err := classify(t.ctx, rerr, ErrResponse)
			d.exec(func() { d.onFailure(t, err) })
			return
		}
		if fired {
			d.exec(func() { d.reissue(t) })
			return
		}
	}
}

func (d *Downloader) current(t *transfer) bool {
	return t.it.hasRequest && t.it.generation == t.generation
}

func (d *Downloader) onResponse(t *transfer, resp *http.Response) bool {
	if !d.current(t) {
		return false
	}
	it := t.it
	it.resp = resp

	// Every byte was written before the pause, only EOF was missing.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable &&
		it.file != nil && t.offset > 0 && t.offset == it.fileSize {
		d.markDownloaded(it)
		return false
	}
	it.fileType = majorType(resp.Header.Get("Content-Type"))

	if resp.StatusCode >= 400 && resp.StatusCode <= 599 {
		d.markError(it, fmt.Errorf("%w: %s", ErrResponse, resp.Status))
		return false
	}

	if it.file == nil {
		if err := d.openOutput(it, resp); err != nil {
			d.markError(it, err)
			return false
		}
	} else if t.offset > 0 && resp.StatusCode != http.StatusPartialContent {
		// The server ignored the range and sends the whole body again.
		slog.Warn("Range not honored, restarting from zero", "id", it.id, "offset", t.offset, "status", resp.StatusCode)
		if err := restart(it.file); err != nil {
			d.markError(it, err)
			return false
		}
		d.ledger[it.id] = 0
		it.fileSize = 0
		t.offset = 0
	}

	// A ranged response only announces the remaining bytes, so a size known
	// from an earlier attempt wins.
	if it.fileSize <= 0 {
		it.fileSize = expectedSize(resp, t.offset)
	}

	d.notify(models.EventDownload, it)
	return true
}

func (d *Downloader) onChunk(t *transfer, chunk []byte) bool {
	if !d.current(t) {
		return false
	}
	it := t.it

	if _, err := it.file.Write(chunk); err != nil {
		d.markError(it, wrapFS(err))
		return false
	}
	d.ledger[it.id] += int64(len(chunk))

	if now := time.Now(); now.Sub(it.lastProgress) >= d.progressDelay {
		it.lastProgress = now
		d.notify(models.EventProgress, it)
	}
	return true
}

func (d *Downloader) onComplete(t *transfer) {
	if !d.current(t) {
		return
	}
	d.markDownloaded(t.it)
}

func (d *Downloader) onFailure(t *transfer, err error) {
	if !d.current(t) {
		return
	}
	d.markError(t.it, err)
}

// reissue replaces the attempt with a new request from the bytes already
// written. The item keeps its slot.
func (d *Downloader) reissue(t *transfer) {
	if !d.current(t) {
		return
	}
	it := t.it
	d.halt(it)
	slog.Debug("Reissuing request", "id", it.id, "offset", d.ledger[it.id])
	d.startTransfer(it, d.ledger[it.id])
}

// openOutput settles the on-disk name on the first response of an item and
// creates the file.
func (d *Downloader) openOutput(it *item, resp *http.Response) error {
	var requestURL *url.URL
	if resp.Request != nil {
		requestURL = resp.Request.URL
	}

	// Redirects were followed, so the final URL stands in for the link.
	name := it.fileName
	if requestURL != nil {
		name = utils.FileNameFromURL(requestURL.String(), name)
	}
	name = utils.FileNameFromResponse(resp.Header, requestURL, name)
	name = utils.FileNameFromTitleParam(it.link, name)
	name = utils.SanitizeFileName(name, replacementChar)

	path := utils.CreateFilePathOnDisk(filepath.Join(it.folderPath, name), d.cfg.OverrideFile, d.cfg.MaxDuplicationFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapFS(err)
	}

	it.file = file
	it.filePath = path
	it.fileName = filepath.Base(path)
	return nil
}

func restart(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return wrapFS(err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return wrapFS(err)
	}
	return nil
}

// expectedSize prefers the total from Content-Range and otherwise adds the
// offset to the announced length of a partial response.
func expectedSize(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if _, total, ok := strings.Cut(cr, "/"); ok {
				if size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64); err == nil && size > 0 {
					return size
				}
			}
		}
		if resp.ContentLength > 0 {
			return resp.ContentLength + offset
		}
		return 0
	}
	return max(resp.ContentLength, 0)
}

func majorType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	major, _, _ := strings.Cut(mediaType, "/")
	return strings.TrimSpace(major)
}

func wrapFS(err error) error {
	return fmt.Errorf("%w: %v", ErrFileSystem, err)
}

// watchdog cancels an attempt when a single wait (for the response headers,
// or for the next body chunk) exceeds the configured timeout.
type watchdog struct {
	timeout time.Duration
	cancel  context.CancelCauseFunc
	mu      sync.Mutex
	timer   *time.Timer
	armed   uint64
	fired   bool
}

func newWatchdog(timeout time.Duration, cancel context.CancelCauseFunc) *watchdog {
	return &watchdog{timeout: timeout, cancel: cancel}
}

func (w *watchdog) arm(cause error) {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.armed++
	w.fired = false
	armed := w.armed
	w.timer = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		// A timer that lost the race against stop does nothing.
		if w.armed != armed {
			return
		}
		w.fired = true
		w.cancel(cause)
	})
}

// stop disarms the watchdog and reports whether it cancelled the attempt
// during the wait that just ended.
func (w *watchdog) stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed++
	fired := w.fired
	w.fired = false
	return fired
}
