package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkdl/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func historyItem(id string, status models.Status, created time.Time) models.Item {
	return models.Item{
		Id:         id,
		FileName:   id + ".bin",
		FolderPath: "/tmp/downloads",
		Link:       "http://example.com/" + id,
		Status:     status,
		FileSize:   100,
		FileType:   "application",
		Created:    created,
	}
}

func TestSaveAndListNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.Save(
		historyItem("old", models.StatusDownloaded, now.Add(-time.Hour)),
		historyItem("new", models.StatusError, now),
	))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Id)
	assert.Equal(t, "old", items[1].Id)
	assert.Equal(t, int64(100), items[1].Downloaded)
	assert.Zero(t, items[0].Downloaded)
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStorage(t)
	item := historyItem("a", models.StatusError, time.Now())
	item.ErrorMessage = "boom"
	item.ErrorKind = "response error"
	require.NoError(t, s.Save(item))

	failed, err := s.Get("a")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "response error", failed[0].ErrorKind)

	item.Status = models.StatusDownloaded
	item.ErrorMessage = ""
	item.ErrorKind = ""
	item.FileSize = 250
	require.NoError(t, s.Save(item))

	items, err := s.Get("a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.StatusDownloaded, items[0].Status)
	assert.Equal(t, int64(250), items[0].FileSize)
	assert.Empty(t, items[0].ErrorMessage)
	assert.Empty(t, items[0].ErrorKind)
}

func TestDeleteReportsExisting(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	require.NoError(t, s.Save(historyItem("a", models.StatusDownloaded, now), historyItem("b", models.StatusDownloaded, now)))

	deleted, err := s.Delete("a", "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deleted)

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Id)

	deleted, err = s.Delete()
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestRecorder(t *testing.T) {
	s := newTestStorage(t)
	enabled := true
	record := s.Recorder(func() bool { return enabled })
	now := time.Now()

	record(models.Event{Type: models.EventDownload, Items: []models.Item{historyItem("started", models.StatusDownloading, now)}})
	record(models.Event{Type: models.EventFinish, Items: []models.Item{historyItem("done", models.StatusDownloaded, now)}})
	record(models.Event{Type: models.EventError, Items: []models.Item{historyItem("failed", models.StatusError, now)}})

	enabled = false
	record(models.Event{Type: models.EventFinish, Items: []models.Item{historyItem("skipped", models.StatusDownloaded, now)}})

	items, err := s.List()
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Id)
	}
	assert.ElementsMatch(t, []string{"done", "failed"}, ids)
}
