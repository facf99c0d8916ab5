package service

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/FileVault/internal/database"
)

// CanRead reports whether the requester may see the file's metadata and
// content. An empty requesterID is an unauthenticated caller, which can
// only satisfy the public branch.
func CanRead(file *database.FileRecord, requesterID string) bool {
	if file.IsPublic {
		return true
	}
	return requesterID != "" && file.OwnerID == requesterID
}

// CanWrite reports whether the requester may mutate the file. Only the
// owner can; there is no sharing or delegation.
func CanWrite(file *database.FileRecord, requesterID string) bool {
	return requesterID != "" && file.OwnerID == requesterID
}

// validateParent checks folder containment for a creation request.
// The parent must exist and be a folder. No cycle check is needed: a
// record can only name an already-existing parent and parents never
// change, so the containment graph grows strictly forward.
func (s *Service) validateParent(ctx context.Context, parentID string) error {
	parent, err := s.store.GetByID(ctx, parentID)
	if errors.Is(err, database.ErrNotFound) {
		return validationErr("parentId", "Parent not found")
	}
	if err != nil {
		return storageErr(err)
	}
	if parent.Kind != database.KindFolder {
		return validationErr("parentId", "Parent is not a folder")
	}
	return nil
}
