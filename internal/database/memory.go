package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory metadata store and job queue with the same
// semantics as PostgresDB. It backs dev mode and tests.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]*FileRecord
	jobs  []*DerivativeJob
	jobID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*FileRecord)}
}

func (m *MemoryStore) Insert(_ context.Context, rec *FileRecord) (*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	stored.ID = uuid.New().String()
	if stored.ParentID == "" {
		stored.ParentID = RootParent
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.files[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) GetByIDForOwner(_ context.Context, id, ownerID string) (*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context, ownerID, parentID string, page, pageSize int) ([]*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*FileRecord
	for _, f := range m.files {
		if f.OwnerID == ownerID && f.ParentID == parentID {
			out := *f
			matched = append(matched, &out)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	start := page * pageSize
	if start >= len(matched) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (m *MemoryStore) UpdateVisibility(_ context.Context, id, ownerID string, isPublic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok || f.OwnerID != ownerID {
		return ErrNotFound
	}
	f.IsPublic = isPublic
	return nil
}

func (m *MemoryStore) CountFiles(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files)), nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Enqueue(_ context.Context, ownerID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobID++
	now := time.Now().UTC()
	m.jobs = append(m.jobs, &DerivativeJob{
		ID:            m.jobID,
		OwnerID:       ownerID,
		FileID:        fileID,
		Status:        JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	return nil
}

func (m *MemoryStore) NextPendingJob(_ context.Context) (*DerivativeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, j := range m.jobs {
		if j.Status == JobPending && !j.NextAttemptAt.After(now) {
			j.Status = JobProcessing
			j.UpdatedAt = now.UTC()
			out := *j
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) RetryJob(_ context.Context, jobID int64, reason string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == jobID {
			j.Status = JobPending
			j.RetryCount++
			j.LastError = reason
			j.NextAttemptAt = time.Now().UTC().Add(delay)
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) FailJob(_ context.Context, jobID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == jobID {
			j.Status = JobFailed
			j.LastError = reason
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CompleteJob(_ context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == jobID {
			now := time.Now().UTC()
			j.Status = JobCompleted
			j.CompletedAt = &now
			j.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ReclaimStale(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, j := range m.jobs {
		if j.Status == JobProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = JobPending
			j.NextAttemptAt = time.Now().UTC()
			j.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// Jobs returns a snapshot of all jobs, oldest first. Used by tests and
// the stats endpoint in dev mode.
func (m *MemoryStore) Jobs() []DerivativeJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DerivativeJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out
}
