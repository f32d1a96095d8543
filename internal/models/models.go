package models

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusPaused      Status = "paused"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
)

// Incomplete reports whether the item still has work left.
func (s Status) Incomplete() bool {
	return s == StatusPending || s == StatusDownloading || s == StatusPaused
}

type DownloadRequest struct {
	Link       string `json:"link"`
	SaveFolder string `json:"saveFolder,omitempty"`
}

type Item struct {
	Id           string    `json:"id"`
	FileName     string    `json:"fileName"`
	FolderPath   string    `json:"folderPath"`
	Link         string    `json:"link"`
	Status       Status    `json:"status"`
	FileSize     int64     `json:"fileSize"`
	FileType     string    `json:"fileType"`
	Downloaded   int64     `json:"downloaded"`
	Created      time.Time `json:"created"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
}

type EventType string

const (
	EventDownload EventType = "download"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventFinish   EventType = "finish"
)

type Event struct {
	Type  EventType `json:"type"`
	Items []Item    `json:"items"`
}
