package repository

import (
	"context"
	"time"

	"appsync/internal/appdata/model"
)

// Store persists app data records. Reads return (nil, nil) for a missing id.
// Every mutation assigns a fresh version and moves updated_at strictly forward.
type Store interface {
	Insert(ctx context.Context, ownerID int64, in model.CreateInput, now time.Time) (*model.Record, error)
	Get(ctx context.Context, id int64) (*model.Record, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Record, error)
	// CountByOwner counts an owner's records; a non-empty kind narrows it to that type.
	CountByOwner(ctx context.Context, ownerID int64, kind string) (int, error)
	ListPage(ctx context.Context, ownerID int64, page model.Page) ([]model.Record, int, error)
	ListByOwnerAndKind(ctx context.Context, ownerID int64, kind string) ([]model.Record, error)
	ListSince(ctx context.Context, ownerID int64, cutoff time.Time) ([]model.Record, error)
	ListSinceVersion(ctx context.Context, ownerID int64, version int64) ([]model.Record, error)
	Update(ctx context.Context, id int64, patch model.Patch, now time.Time) (*model.Record, error)
	TouchAllByOwner(ctx context.Context, ownerID int64, now time.Time) ([]model.Record, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteByOwner(ctx context.Context, ownerID int64) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ Store = (*PostgresRepository)(nil)
	_ Store = (*MemoryRepository)(nil)
)

// bump returns the updated_at a mutation at now must write over prev.
func bump(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
