package store

import (
	"context"
	"errors"

	"streakline/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Create when the mission id is already taken.
	ErrExists = errors.New("already exists")
	// ErrVersionConflict is returned by CompareAndSwap when the stored
	// version no longer matches the expected one, i.e. the caller lost a
	// race and must re-read before retrying.
	ErrVersionConflict = errors.New("version conflict")
)

// Store is the durable mission persistence contract. Missions are keyed by
// id and scoped by owner; CompareAndSwap is the only mutation path for
// existing records so concurrent read-evaluate-write sequences cannot lose
// updates.
type Store interface {
	Create(ctx context.Context, m domain.Mission) (domain.Mission, error)
	Get(ctx context.Context, id string) (domain.Mission, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Mission, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, m domain.Mission) (domain.Mission, error)
	Delete(ctx context.Context, id string) error
}
