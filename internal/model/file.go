package model

import "time"

// UploadTarget is a one-shot upload slot. The client sends the file to URL with Method
// and then passes StorageID as the message image.
type UploadTarget struct {
	URL       string    `json:"upload_url"`
	Method    string    `json:"method"`
	StorageID string    `json:"storage_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredObject describes an uploaded file as seen by the cleanup job.
type StoredObject struct {
	Ref       string
	Size      int64
	CreatedAt time.Time
}
