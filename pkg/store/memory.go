package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carelink/internal/util"
	"carelink/pkg/apperr"
)

// MemoryConfig configures an in-memory repository.
type MemoryConfig struct {
	// Unique lists fields whose non-empty values may not repeat.
	Unique []string
	Now    func() time.Time
}

// MemoryRepository keeps records in-process (single instance only).
type MemoryRepository[T any, P Entity[T]] struct {
	mu     sync.RWMutex
	items  map[string]T
	unique []string
	now    func() time.Time
}

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository[T any, P Entity[T]](cfg MemoryConfig) *MemoryRepository[T, P] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository[T, P]{
		items:  make(map[string]T),
		unique: cfg.Unique,
		now:    now,
	}
}

func (r *MemoryRepository[T, P]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, TransportError("find", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository[T, P]) FindMany(ctx context.Context, f Filter) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, TransportError("find many", err)
	}
	r.mu.RLock()
	out := make([]T, 0)
	for _, rec := range r.items {
		ok, err := matchAll[T, P](P(&rec), f.Conds)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	field := f.orderField()
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := P(&out[i]).Field(field)
		b, bok := P(&out[j]).Field(field)
		if !aok || !bok {
			sortErr = unknownField(field)
			return false
		}
		n, err := compare(normalize(a), normalize(b))
		if err != nil {
			sortErr = err
			return false
		}
		if n == 0 {
			n = strings.Compare(P(&out[i]).Base().ID, P(&out[j]).Base().ID)
		}
		if f.Ascending {
			return n < 0
		}
		return n > 0
	})
	if sortErr != nil {
		return nil, asFilterError(sortErr)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository[T, P]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, TransportError("create", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	meta := P(&rec).Base()
	if meta.ID == "" {
		meta.ID = util.NewID()
	}
	if _, exists := r.items[meta.ID]; exists {
		return zero, ErrConflict
	}
	if err := r.checkUnique(P(&rec), meta.ID); err != nil {
		return zero, err
	}
	now := r.now().UTC()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.Version = 1
	r.items[meta.ID] = rec
	return rec, nil
}

func (r *MemoryRepository[T, P]) Update(ctx context.Context, id string, patch Patch[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, TransportError("update", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	prev := *P(&cur).Base()
	if patch.IfVersion != 0 && patch.IfVersion != prev.Version {
		return zero, ErrConflict
	}
	next := cur
	if patch.Apply != nil {
		if err := patch.Apply(&next); err != nil {
			return zero, err
		}
	}
	meta := P(&next).Base()
	meta.ID = prev.ID
	meta.CreatedAt = prev.CreatedAt
	meta.Version = prev.Version + 1
	meta.UpdatedAt = r.now().UTC()
	if err := r.checkUnique(P(&next), id); err != nil {
		return zero, err
	}
	r.items[id] = next
	return next, nil
}

func (r *MemoryRepository[T, P]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return TransportError("delete", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository[T, P]) checkUnique(rec P, selfID string) error {
	for _, field := range r.unique {
		v, ok := rec.Field(field)
		if !ok {
			return unknownField(field)
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		want := normalize(v)
		for id, other := range r.items {
			if id == selfID {
				continue
			}
			ov, _ := P(&other).Field(field)
			if n, err := compare(normalize(ov), want); err == nil && n == 0 {
				return ErrConflict.With("field", field)
			}
		}
	}
	return nil
}

func matchAll[T any, P Entity[T]](rec P, conds []Cond) (bool, error) {
	for _, c := range conds {
		ok, err := c.matches(rec.Field)
		if err != nil {
			return false, asFilterError(err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func asFilterError(err error) error {
	if _, ok := err.(*apperr.Error); ok {
		return err
	}
	return apperr.Wrap(apperr.Validation, "invalid filter", err)
}
