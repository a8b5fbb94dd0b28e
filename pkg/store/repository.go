package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

// Repository errors. Unique-key violations come back as a copy of ErrConflict
// carrying the field, so match on kind with apperr.Is.
var (
	ErrNotFound = apperr.New(apperr.NotFound, "record not found")
	ErrConflict = apperr.New(apperr.Conflict, "record changed concurrently")
)

// TransportError marks a failure to reach or use the storage engine.
func TransportError(op string, err error) error {
	return apperr.Wrap(apperr.DependencyUnavailable, "storage unavailable", fmt.Errorf("%s: %w", op, err))
}

// Entity is satisfied by pointers to the domain records.
type Entity[T any] interface {
	*T
	Base() *domain.Meta
	Field(name string) (any, bool)
}

// Patch describes an update. Apply mutates a copy of the current record;
// server-managed metadata is restored afterwards. A non-zero IfVersion makes
// the write conditional on the stored version.
type Patch[T any] struct {
	IfVersion int64
	Apply     func(*T) error
}

// Repository is the storage contract the domain code depends on.
type Repository[T any] interface {
	FindByID(ctx context.Context, id string) (T, error)
	FindMany(ctx context.Context, f Filter) ([]T, error)
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, id string, patch Patch[T]) (T, error)
	Delete(ctx context.Context, id string) error
}

// FindOne returns the first match of f or ErrNotFound.
func FindOne[T any](ctx context.Context, repo Repository[T], f Filter) (T, error) {
	var zero T
	out, err := repo.FindMany(ctx, f.Take(1))
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, ErrNotFound
	}
	return out[0], nil
}

// NewRepository returns a Postgres-backed repository when db is set and an
// in-memory one otherwise. unique names the fields the memory variant must
// keep distinct; the SQL schema enforces the same through unique indexes.
func NewRepository[T any, P Entity[T], M any](db *gorm.DB, codec Codec[T, M], unique ...string) Repository[T] {
	if db != nil {
		return NewGormRepository[T, P](db, codec)
	}
	return NewMemoryRepository[T, P](MemoryConfig{Unique: unique})
}
