// Package memories defines the records produced by the capture pipeline
// and the persistence interface they are saved through.
package memories

import (
	"context"
	"time"
)

// MemoryRecord is one saved memory. Identity is immutable once created;
// content stays editable outside this pipeline.
type MemoryRecord struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Narrative   string    `json:"narrative"`
	Date        string    `json:"date,omitempty"`
	Place       string    `json:"place,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	RecordingID string    `json:"recording_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MediaKind classifies an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Attachment is a binary reference linked to a memory.
type Attachment struct {
	ID       string    `json:"id"`
	MemoryID string    `json:"memory_id"`
	Kind     MediaKind `json:"kind"`
	// Path is the storage key of the uploaded blob.
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordingMetadata is the persisted shape of a finalized recording.
type RecordingMetadata struct {
	OwnerID         string   `json:"owner_id"`
	SessionID       string   `json:"session_id"`
	DurationSeconds float64  `json:"duration_seconds"`
	ByteSize        int      `json:"byte_size"`
	SampleRate      int      `json:"sample_rate"`
	BitRate         int      `json:"bit_rate"`
	CaptureMode     string   `json:"capture_mode"`
	Transcript      string   `json:"transcript"`
	Summary         string   `json:"summary"`
	MemoryIDs       []string `json:"memory_ids"`
	MemoryTitles    []string `json:"memory_titles"`
}

// Persistence is the durable-storage collaborator. Implementations live
// under pkg/store.
type Persistence interface {
	SaveMemory(ctx context.Context, record *MemoryRecord) error
	SaveAttachment(ctx context.Context, att *Attachment, data []byte) error
	SaveRecording(ctx context.Context, meta *RecordingMetadata, audio []byte) error
	GetMemory(ctx context.Context, id string) (*MemoryRecord, error)
	ListMemories(ctx context.Context, ownerID string, limit int) ([]*MemoryRecord, error)
}
