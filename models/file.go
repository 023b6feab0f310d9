package models

import (
	"io"
	"time"
)

// FileRecord is the metadata row for an uploaded blob
type FileRecord struct {
	ID              int64      `json:"id"`
	StorageKey      string     `json:"storageKey"`
	OriginalName    string     `json:"originalName"`
	Size            int64      `json:"size"`
	MimeType        string     `json:"mimeType"`
	SenderID        int64      `json:"senderId"`
	RecipientID     int64      `json:"recipientId"`
	LinkedMessageID *int64     `json:"messageId,omitempty"`
	UploadedAt      time.Time  `json:"uploadedAt"`
	DownloadedAt    *time.Time `json:"downloadedAt,omitempty"`
	SenderUsername  string     `json:"senderUsername,omitempty"`
}

// FileSummary is what the upload endpoint returns
type FileSummary struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
}

// Summary converts a record to its upload response form
func (f *FileRecord) Summary() FileSummary {
	return FileSummary{
		ID:           f.ID,
		Filename:     f.StorageKey,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		Type:         f.MimeType,
	}
}

// FileUpload carries an incoming file into the conversation ledger
type FileUpload struct {
	OriginalName string
	MimeType     string
	Content      io.Reader
}
