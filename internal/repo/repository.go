package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

var ErrNotFound = errors.New("run not found")

// RunStore keeps finished runs for the lifetime of the process.
type RunStore interface {
	Add(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]domain.Run, error)
}
