package service

import (
	"context"

	"github.com/PaulBabatuyi/FileVault/internal/database"
)

// MetadataStore is the metadata persistence the orchestrator depends on.
// Implemented by database.PostgresDB and database.MemoryStore.
type MetadataStore interface {
	Insert(ctx context.Context, rec *database.FileRecord) (*database.FileRecord, error)
	GetByID(ctx context.Context, id string) (*database.FileRecord, error)
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*database.FileRecord, error)
	List(ctx context.Context, ownerID, parentID string, page, pageSize int) ([]*database.FileRecord, error)
	UpdateVisibility(ctx context.Context, id, ownerID string, isPublic bool) error
	CountFiles(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// JobQueue accepts derivative jobs. Enqueue is durable and at-least-once;
// the consumer contract lives in the worker package.
type JobQueue interface {
	Enqueue(ctx context.Context, ownerID, fileID string) error
}
