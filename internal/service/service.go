package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/auth"
	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
)

// Service is the upload/retrieval orchestrator. Collaborators are
// injected so tests run against in-memory implementations.
type Service struct {
	creds    auth.CredentialStore
	store    MetadataStore
	bytes    storage.ByteStore
	queue    JobQueue
	logger   *zap.Logger
	metrics  *observability.Metrics
	pageSize int
}

func New(creds auth.CredentialStore, store MetadataStore, bytes storage.ByteStore, queue JobQueue,
	logger *zap.Logger, metrics *observability.Metrics, pageSize int) *Service {
	return &Service{
		creds:    creds,
		store:    store,
		bytes:    bytes,
		queue:    queue,
		logger:   logger,
		metrics:  metrics,
		pageSize: pageSize,
	}
}

// UploadRequest is the validated shape of a creation request. ParentID
// empty or "0" means the root. Data is base64 and required for non-folder
// kinds.
type UploadRequest struct {
	Name     string
	Type     string
	Data     string
	ParentID string
	IsPublic bool
}

// Content is the result of a content read.
type Content struct {
	Data []byte
	MIME string
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// identify resolves the token to a user id. Absent sessions are an
// ErrUnauthorized unless optional is set, in which case the caller gets
// an empty id usable only against the public-read branch.
func (s *Service) identify(ctx context.Context, token string, optional bool) (string, error) {
	userID, err := s.creds.Resolve(ctx, token)
	if errors.Is(err, auth.ErrNoSession) {
		if optional {
			return "", nil
		}
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", storageErr(err)
	}
	return userID, nil
}

// Upload runs the creation workflow. The check order is fixed: identity,
// name, type, data, hierarchy, then persistence, so a request with
// several problems always gets the same error. Bytes are written before
// metadata; a failed write leaves no record behind. For images, exactly
// one derivative job is enqueued after the metadata commit.
func (s *Service) Upload(ctx context.Context, token string, req UploadRequest) (*database.FileRecord, error) {
	userID, err := s.identify(ctx, token, false)
	if err != nil {
		return nil, err
	}

	if req.Name == "" {
		return nil, validationErr("name", "Missing name")
	}
	if !database.ValidKind(req.Type) {
		return nil, validationErr("type", "Missing type")
	}
	kind := database.Kind(req.Type)

	if kind != database.KindFolder && req.Data == "" {
		return nil, validationErr("data", "Missing data")
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = database.RootParent
	}
	if parentID != database.RootParent {
		if err := s.validateParent(ctx, parentID); err != nil {
			return nil, err
		}
	}

	rec := &database.FileRecord{
		OwnerID:  userID,
		Name:     req.Name,
		Kind:     kind,
		IsPublic: req.IsPublic,
		ParentID: parentID,
	}

	if kind != database.KindFolder {
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, validationErr("data", "Invalid data")
		}

		ref := uuid.New().String()
		if err := s.bytes.Write(ref, data); err != nil {
			// No metadata exists yet, so the failed write leaves no
			// partial state. Treated like a rejected request.
			s.logger.Error("byte persistence failed", zap.String("ref", ref), zap.Error(err))
			return nil, validationErr("data", err.Error())
		}
		rec.StorageRef = ref
	}

	stored, err := s.store.Insert(ctx, rec)
	if err != nil {
		return nil, storageErr(err)
	}
	s.metrics.UploadsTotal.WithLabelValues(string(kind)).Inc()

	if kind == database.KindImage {
		if err := s.queue.Enqueue(ctx, stored.OwnerID, stored.ID); err != nil {
			// The file exists; only its derivatives are delayed. Enqueue
			// retry is a pipeline concern, not this request's.
			s.metrics.EnqueueFailures.Inc()
			s.logger.Error("derivative enqueue failed",
				zap.String("file_id", stored.ID),
				zap.String("owner_id", stored.OwnerID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("file created",
		zap.String("file_id", stored.ID),
		zap.String("kind", string(kind)),
		zap.String("parent_id", stored.ParentID),
	)
	return stored, nil
}

// GetOne returns a single record, hiding private files of other users
// behind the same not-found answer as absent ids.
func (s *Service) GetOne(ctx context.Context, token, id string) (*database.FileRecord, error) {
	userID, err := s.identify(ctx, token, false)
	if err != nil {
		return nil, err
	}

	file, err := s.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if !CanRead(file, userID) {
		return nil, database.ErrNotFound
	}
	return file, nil
}

// List returns one page of the caller's files under parentID. A
// parentID that matches nothing (including a malformed id) yields an
// empty page rather than an error.
func (s *Service) List(ctx context.Context, token, parentID string, page int) ([]*database.FileRecord, error) {
	userID, err := s.identify(ctx, token, false)
	if err != nil {
		return nil, err
	}

	if parentID == "" {
		parentID = database.RootParent
	}
	if page < 0 {
		page = 0
	}

	files, err := s.store.List(ctx, userID, parentID, page, s.pageSize)
	if err != nil {
		return nil, storageErr(err)
	}
	return files, nil
}

func (s *Service) Publish(ctx context.Context, token, id string) (*database.FileRecord, error) {
	return s.setVisibility(ctx, token, id, true)
}

func (s *Service) Unpublish(ctx context.Context, token, id string) (*database.FileRecord, error) {
	return s.setVisibility(ctx, token, id, false)
}

// setVisibility is idempotent: publishing an already-public record (or
// unpublishing a private one) succeeds and returns the current state.
func (s *Service) setVisibility(ctx context.Context, token, id string, isPublic bool) (*database.FileRecord, error) {
	userID, err := s.identify(ctx, token, false)
	if err != nil {
		return nil, err
	}

	file, err := s.store.GetByIDForOwner(ctx, id, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}

	if file.IsPublic != isPublic {
		if err := s.store.UpdateVisibility(ctx, id, userID, isPublic); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, database.ErrNotFound
			}
			return nil, storageErr(err)
		}
		file.IsPublic = isPublic
	}
	return file, nil
}

// GetContent returns the file's bytes, or a derivative when width is
// non-zero. Unauthenticated callers are allowed through to the public
// check. A derivative that the pipeline has not produced yet reads as
// not found; retrieval never waits for the pipeline.
func (s *Service) GetContent(ctx context.Context, token, id string, width int) (*Content, error) {
	userID, err := s.identify(ctx, token, true)
	if err != nil {
		return nil, err
	}

	file, err := s.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if !CanRead(file, userID) {
		return nil, database.ErrNotFound
	}
	if file.Kind == database.KindFolder {
		return nil, validationErr("type", "A folder doesn't have content")
	}

	ref := file.StorageRef
	if width > 0 {
		ref = storage.DerivativeRef(file.StorageRef, width)
	}

	ok, err := s.bytes.Exists(ref)
	if err != nil {
		return nil, storageErr(err)
	}
	if !ok {
		return nil, database.ErrNotFound
	}

	data, err := s.bytes.Read(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}

	return &Content{Data: data, MIME: contentTypeFor(file.Name)}, nil
}

// Status reports liveness of the two external stores.
func (s *Service) Status(ctx context.Context) (credsAlive, storeAlive bool) {
	return s.creds.Ping(ctx) == nil, s.store.Ping(ctx) == nil
}

// Stats reports the file count.
func (s *Service) Stats(ctx context.Context) (int64, error) {
	n, err := s.store.CountFiles(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func contentTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "text/plain; charset=utf-8"
}
