package database

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("metadata store unavailable")
)

// RootParent is the sentinel parent id for files with no containing folder.
const RootParent = "0"

type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
	KindImage  Kind = "image"
)

// ValidKind reports whether s is one of the three accepted file kinds.
func ValidKind(s string) bool {
	switch Kind(s) {
	case KindFolder, KindFile, KindImage:
		return true
	}
	return false
}

// FileRecord is the metadata row for a stored file or folder.
// StorageRef is empty for folders. OwnerID and Kind never change after
// creation; IsPublic changes only through UpdateVisibility.
type FileRecord struct {
	ID         string
	OwnerID    string
	Name       string
	Kind       Kind
	IsPublic   bool
	ParentID   string
	StorageRef string
	CreatedAt  time.Time
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DerivativeJob is one unit of work for the image pipeline. Jobs are
// durable rows: a job stays claimable until completed or failed, so
// delivery is at least once and processing must be idempotent.
type DerivativeJob struct {
	ID            int64
	OwnerID       string
	FileID        string
	Status        JobStatus
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}
