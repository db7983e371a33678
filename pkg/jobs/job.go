package jobs

import (
	"fmt"
	"time"

	"github.com/faheemlabs/faheem/pkg/transcriber"
)

// Status is a job's position in the transcription lifecycle. Progression
// is strictly forward; completed and error are terminal.
type Status string

const (
	StatusAwaitingMetadata Status = "awaiting_metadata"
	StatusQueued           Status = "queued"
	StatusPreparing        Status = "preparing"
	StatusTranscribing     Status = "transcribing"
	StatusCompleted        Status = "completed"
	StatusError            Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether a status change is a legal forward step.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusQueued:
		return from == StatusAwaitingMetadata
	case StatusPreparing:
		return from == StatusQueued
	case StatusTranscribing:
		return from == StatusPreparing
	case StatusCompleted:
		return from == StatusTranscribing
	case StatusError:
		return from == StatusQueued || from == StatusPreparing || from == StatusTranscribing
	default:
		return false
	}
}

// MaxFileSize is the largest source file the worklist accepts.
const MaxFileSize int64 = 500 << 20

// Job is one user-submitted file tracked through the transcription
// lifecycle. The manager owns it exclusively; the orchestrator only ever
// sees copies of the inputs and reports back through callbacks.
type Job struct {
	ID            string                `json:"id"`
	FileName      string                `json:"file_name"`
	MimeType      string                `json:"mime_type"`
	ByteSize      int64                 `json:"byte_size"`
	Metadata      *transcriber.Metadata `json:"metadata,omitempty"`
	Status        Status                `json:"status"`
	Transcription string                `json:"transcription"`
	Error         string                `json:"error,omitempty"`
	Progress      *int                  `json:"progress,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// DeriveID builds the deterministic job id from the file's identity so
// re-adding the same file dedupes.
func DeriveID(name string, size int64, modTime time.Time) string {
	return fmt.Sprintf("%s-%d-%d", name, modTime.UnixMilli(), size)
}
