package ports

import (
	"context"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// RunRepository persists runs and their summaries.
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	Finish(ctx context.Context, id string, summary *domain.RunSummary) error
	Fail(ctx context.Context, id string, reason string) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, offset, limit int) ([]domain.Run, int, error)
}
