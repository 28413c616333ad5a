package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sponsorportal/pkg/db/option"
)

// ErrStorage matches every error produced by a Repository call.
var ErrStorage = errors.New("storage error")

// StorageError wraps a driver error with the repository operation that caused it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Repository is the generic collection adapter used by every service. Query
// structs match on their non-zero fields.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Delete(ctx context.Context, resourceID string) error
	BatchCreate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) query(ctx context.Context, query *T, opts []option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Model(new(T))
	if query != nil {
		db = db.Where(query)
	}
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.query(ctx, query, opts).Find(&out).Error; err != nil {
		return nil, wrap("find", err)
	}
	return out, nil
}

// FindOne returns nil without error when nothing matches.
func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	if err := s.query(ctx, query, opts).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrap("find_one", err)
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return wrap("insert", s.db.WithContext(ctx).Create(resource).Error)
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	res := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource)
	if res.Error != nil {
		return wrap("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *store[T]) Delete(ctx context.Context, resourceID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", resourceID).Delete(new(T))
	if res.Error != nil {
		return wrap("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return wrap("batch_insert", s.db.WithContext(ctx).CreateInBatches(resources, 100).Error)
}

func (s *store[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	if err := s.query(ctx, query, opts).Count(&count).Error; err != nil {
		return 0, wrap("count", err)
	}
	return count, nil
}
