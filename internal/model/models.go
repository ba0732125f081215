// Package model holds the JSON shapes exchanged between the server and its clients.
package model

import "time"

// CreateRoomRequest is the body of POST /api/room.
type CreateRoomRequest struct {
	ReaderAuthToken string `json:"readerAuthToken"`
	Salt            string `json:"salt"`
}

// CreateRoomResponse carries the only copy of the writer token.
type CreateRoomResponse struct {
	ID              string    `json:"id"`
	WriterAuthToken string    `json:"writerAuthToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// FinalizeRequest is the body of PUT /api/room/{id}. Metadata is the
// encrypted manifest, opaque to the server.
type FinalizeRequest struct {
	WriterAuthToken string `json:"writerAuthToken"`
	Metadata        string `json:"metadata"`
}

// SaltResponse is returned by GET /api/room/{id}/salt.
type SaltResponse struct {
	Salt string `json:"salt"`
}

// Room is a room as a reader sees it. It never includes the writer token.
type Room struct {
	ID        string    `json:"id"`
	Salt      string    `json:"salt"`
	Metadata  *string   `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FileStatus reports the progress of one upload.
type FileStatus struct {
	TusID    string `json:"tusId"`
	FileID   string `json:"fileId"`
	Uploaded bool   `json:"uploaded"`
	Promoted bool   `json:"promoted"`
	Size     int64  `json:"size"`
}

// ServerConfig is returned by GET /api/config.
type ServerConfig struct {
	PasswordRequired bool   `json:"passwordRequired"`
	MaxFileSize      int64  `json:"maxFileSize"`
	MaxFiles         int    `json:"maxFiles"`
	RoomTTLSeconds   int64  `json:"roomTTLSeconds"`
	TrackerPath      string `json:"trackerPath,omitempty"`
	UploadPath       string `json:"uploadPath"`
}

// Error is the body of every non-2xx JSON response.
type Error struct {
	Error string `json:"error"`
}

// Manifest is the plaintext of a room's metadata. Clients encrypt it before
// finalizing, so the server only ever stores ciphertext.
type Manifest struct {
	Files []ManifestFile `json:"files"`
}

// ManifestFile describes one shared file.
type ManifestFile struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Type   string `json:"type,omitempty"`
}
