// Package service contains the user directory and the API key issuance workflow.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/repository"
)

// DirectoryService defines the lifecycle of directory records.
type DirectoryService interface {
	// Get returns the record stored under key, or nil when there is none.
	Get(ctx context.Context, key string) (*model.User, error)
	// LookupByExternalID resolves the single record carrying id.
	LookupByExternalID(ctx context.Context, id string) (*model.User, error)
	// Create stores a new record with the default role.
	Create(ctx context.Context, u model.User) (*model.User, error)
	// CreatePrivileged stores a new record keeping its declared role and key.
	CreatePrivileged(ctx context.Context, u model.User) (*model.User, error)
	// Update changes the display name of an existing record.
	Update(ctx context.Context, u model.User) (*model.User, error)
	// UpdatePrivileged also overwrites external id, role and API key.
	UpdatePrivileged(ctx context.Context, u model.User) (*model.User, error)
	// Remove deletes a record; removing a missing key succeeds.
	Remove(ctx context.Context, key string) error
}

type DirectoryServiceImpl struct {
	table repository.Table
	log   *zap.Logger

	now    func() time.Time
	newKey func() (string, error)
}

var _ DirectoryService = (*DirectoryServiceImpl)(nil)

// NewDirectoryService constructs DirectoryService over a table keyed by model.AttrUUID.
func NewDirectoryService(table repository.Table, log *zap.Logger) *DirectoryServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectoryServiceImpl{
		table: table,
		log:   log,
		now:   time.Now,
		newKey: func() (string, error) {
			id, err := uuid.NewV4()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// Get loads a record by internal key. Absence is not an error.
func (s *DirectoryServiceImpl) Get(ctx context.Context, key string) (*model.User, error) {
	item, ok, err := s.table.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	u := model.UserFromItem(item)
	return &u, nil
}

// LookupByExternalID scans for records with the given external id, reading
// only keys. More than one match means the uniqueness invariant is broken
// and is reported as errs.ErrIntegrity rather than picking one.
func (s *DirectoryServiceImpl) LookupByExternalID(ctx context.Context, id string) (*model.User, error) {
	rows, err := s.table.Scan(ctx,
		repository.Filter{Attr: model.AttrExternalID, Value: id},
		model.AttrUUID, model.AttrExternalID,
	)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
	default:
		s.log.Error("duplicate external id", zap.String("external_id", id), zap.Int("matches", len(rows)))
		return nil, fmt.Errorf("lookup %s: %d records: %w", id, len(rows), errs.ErrIntegrity)
	}

	key := model.UserFromItem(rows[0]).UUID
	if key == "" {
		return nil, fmt.Errorf("lookup %s: record without key: %w", id, errs.ErrIntegrity)
	}
	return s.Get(ctx, key)
}

func (s *DirectoryServiceImpl) Create(ctx context.Context, u model.User) (*model.User, error) {
	return s.create(ctx, u, false)
}

func (s *DirectoryServiceImpl) CreatePrivileged(ctx context.Context, u model.User) (*model.User, error) {
	return s.create(ctx, u, true)
}

func (s *DirectoryServiceImpl) create(ctx context.Context, in model.User, privileged bool) (*model.User, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}
	ts := s.now().UnixMilli()
	u := model.User{
		UUID:       key,
		ExternalID: in.ExternalID,
		Username:   in.Username,
		Role:       model.RoleUser,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if privileged {
		u.Role = in.Role
		u.APIKey = in.APIKey
	}
	if err := s.table.Put(ctx, u.Item()); err != nil {
		return nil, err
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, fmt.Errorf("create %s: not readable after write: %w", key, errs.ErrIntegrity)
	}
	return got, nil
}

func (s *DirectoryServiceImpl) Update(ctx context.Context, u model.User) (*model.User, error) {
	return s.update(ctx, u, false)
}

func (s *DirectoryServiceImpl) UpdatePrivileged(ctx context.Context, u model.User) (*model.User, error) {
	return s.update(ctx, u, true)
}

// update reads the current record, merges the permitted fields of in over
// it and writes the result back as a field-level update expression.
func (s *DirectoryServiceImpl) update(ctx context.Context, in model.User, privileged bool) (*model.User, error) {
	if in.UUID == "" {
		return nil, fmt.Errorf("update: empty key: %w", errs.ErrInvalidArgument)
	}
	cur, err := s.Get(ctx, in.UUID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("update %s: %w", in.UUID, errs.ErrNotFound)
	}
	if cur.UUID == "" {
		return nil, fmt.Errorf("update %s: stored record without key: %w", in.UUID, errs.ErrIntegrity)
	}

	next := *cur
	next.Username = in.Username
	next.UpdatedAt = s.now().UnixMilli()
	if privileged {
		next.ExternalID = in.ExternalID
		next.Role = in.Role
		next.APIKey = in.APIKey // empty clears the key
	}

	ex := model.CompileUpdate(next)
	if err := s.table.Update(ctx, cur.UUID, ex); err != nil {
		return nil, err
	}
	return s.Get(ctx, cur.UUID)
}

// Remove deletes the record at key.
func (s *DirectoryServiceImpl) Remove(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("remove: empty key: %w", errs.ErrInvalidArgument)
	}
	return s.table.Delete(ctx, key)
}
