package download

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"bulkdl/internal/models"
)

const (
	chunkSize       = 32 * 1024
	progressDelay   = time.Second
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	replacementChar = "_"
)

// Downloader is the bulk download engine. Queue, item and ledger state is
// owned by a single loop goroutine; every public method runs as one step on
// that loop, and transfer goroutines only do network I/O.
type Downloader struct {
	client        *http.Client
	progressDelay time.Duration
	notifier      *notifier

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once

	// loop-owned
	cfg           Config
	defaultFolder string
	items         []*item
	ledger        map[string]int64
	pumping       bool
	repump        bool
}

type Option func(*Downloader)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

func WithConfig(cfg Config) Option {
	return func(d *Downloader) { d.cfg = cfg }
}

func WithProgressDelay(delay time.Duration) Option {
	return func(d *Downloader) { d.progressDelay = delay }
}

func New(downloadDir string, opts ...Option) *Downloader {
	if abs, err := filepath.Abs(downloadDir); err == nil {
		downloadDir = abs
	}
	if err := os.MkdirAll(downloadDir, os.ModePerm); err != nil {
		slog.Warn("Could not create download folder", "path", downloadDir, "error", err)
	}

	d := &Downloader{
		client:        &http.Client{},
		defaultFolder: downloadDir,
		progressDelay: progressDelay,
		notifier:      newNotifier(),
		ops:           make(chan func()),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		cfg:           DefaultConfig(),
		ledger:        make(map[string]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the engine loop. Methods called before Start block until it runs.
func (d *Downloader) Start() {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.loop()
	})
}

// Close aborts in-flight transfers and stops the loop. Partial files are kept.
func (d *Downloader) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		if d.started.Load() {
			<-d.done
		}
		d.notifier.close()
	})
}

// Subscribe registers an observer for download, progress, error and finish
// events. The returned function unregisters it.
func (d *Downloader) Subscribe(fn Observer) func() {
	return d.notifier.subscribe(fn)
}

func (d *Downloader) loop() {
	defer close(d.done)
	for {
		select {
		case fn := <-d.ops:
			fn()
		case <-d.quit:
			d.shutdown()
			return
		}
	}
}

// exec runs fn on the loop and waits for it. It reports false once the
// engine is closed and fn was not run.
func (d *Downloader) exec(fn func()) bool {
	finished := make(chan struct{})
	select {
	case d.ops <- func() { fn(); close(finished) }:
	case <-d.quit:
		return false
	}
	<-finished
	return true
}

func (d *Downloader) shutdown() {
	for _, it := range d.items {
		d.halt(it)
		if it.file != nil {
			if err := it.file.Close(); err != nil {
				slog.Warn("Failed to close file", "id", it.id, "error", err)
			}
			it.file = nil
		}
	}
	slog.Info("Downloader stopped", "items", len(d.items))
}

func (d *Downloader) notify(eventType models.EventType, it *item) {
	d.notifier.publish(models.Event{
		Type:  eventType,
		Items: []models.Item{it.snapshot(d.ledger[it.id])},
	})
}
