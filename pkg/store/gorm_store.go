package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"carelink/internal/util"
)

const migrateLockID int64 = 51170917

// OpenPostgres opens the database and migrates the given models under a
// cluster-wide advisory lock.
func OpenPostgres(dsn string, models ...any) (*gorm.DB, error) {
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return db, nil
}

// Open builds a gorm handle over any dialector.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		stdlog.New(log.Logger, "", 0),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLog,
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Codec converts between a domain record and its table model. Columns maps
// filterable field names to column names.
type Codec[T any, M any] struct {
	ToModel   func(T) (M, error)
	FromModel func(M) (T, error)
	Columns   map[string]string
}

// GormRepository implements Repository on a SQL database. Writes are
// conditional on the version read just before, so a lost race surfaces as
// ErrConflict instead of overwriting.
type GormRepository[T any, P Entity[T], M any] struct {
	db    *gorm.DB
	codec Codec[T, M]
	now   func() time.Time
}

func NewGormRepository[T any, P Entity[T], M any](db *gorm.DB, codec Codec[T, M]) *GormRepository[T, P, M] {
	return &GormRepository[T, P, M]{db: db, codec: codec, now: time.Now}
}

func (r *GormRepository[T, P, M]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	m, err := r.take(ctx, id)
	if err != nil {
		return zero, err
	}
	return r.decode(m)
}

func (r *GormRepository[T, P, M]) FindMany(ctx context.Context, f Filter) ([]T, error) {
	q := r.db.WithContext(ctx).Model(new(M))
	for _, c := range f.Conds {
		col, ok := r.codec.Columns[c.Field]
		if !ok {
			return nil, unknownField(c.Field)
		}
		switch c.Op {
		case OpEq:
			q = q.Where(col+" = ?", c.Value)
		case OpIn:
			if len(c.Values) == 0 {
				return []T{}, nil
			}
			q = q.Where(col+" IN ?", c.Values)
		case OpRange:
			if c.From != nil {
				q = q.Where(col+" >= ?", c.From)
			}
			if c.To != nil {
				q = q.Where(col+" < ?", c.To)
			}
		}
	}
	orderCol, ok := r.codec.Columns[f.orderField()]
	if !ok {
		return nil, unknownField(f.orderField())
	}
	dir := " DESC"
	if f.Ascending {
		dir = " ASC"
	}
	q = q.Order(orderCol + dir).Order("id" + dir)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var models []M
	if err := q.Find(&models).Error; err != nil {
		return nil, TransportError("find many", err)
	}
	out := make([]T, 0, len(models))
	for _, m := range models {
		rec, err := r.decode(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *GormRepository[T, P, M]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	meta := P(&rec).Base()
	if meta.ID == "" {
		meta.ID = util.NewID()
	}
	now := r.now().UTC()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.Version = 1
	m, err := r.codec.ToModel(rec)
	if err != nil {
		return zero, fmt.Errorf("encode record: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return zero, writeError("create", err)
	}
	return rec, nil
}

func (r *GormRepository[T, P, M]) Update(ctx context.Context, id string, patch Patch[T]) (T, error) {
	var zero T
	m, err := r.take(ctx, id)
	if err != nil {
		return zero, err
	}
	cur, err := r.decode(m)
	if err != nil {
		return zero, err
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

	nm, err := r.codec.ToModel(next)
	if err != nil {
		return zero, fmt.Errorf("encode record: %w", err)
	}
	res := r.db.WithContext(ctx).Model(&nm).
		Where("version = ?", prev.Version).
		Select("*").Omit("id", "created_at").
		Updates(&nm)
	if res.Error != nil {
		return zero, writeError("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return zero, ErrConflict
	}
	return next, nil
}

func (r *GormRepository[T, P, M]) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(M))
	if res.Error != nil {
		return TransportError("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository[T, P, M]) take(ctx context.Context, id string) (M, error) {
	var m M
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, TransportError("find", err)
	}
	return m, nil
}

func (r *GormRepository[T, P, M]) decode(m M) (T, error) {
	rec, err := r.codec.FromModel(m)
	if err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func writeError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return TransportError(op, err)
}
