package ports

import (
	"context"
	"time"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// Requester sends rendered HTTP requests to the system under test.
type Requester interface {
	Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error)
}

// ResultPublisher publishes per-request results and run summaries to a message broker.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *domain.RequestResult) error
	PublishSummary(ctx context.Context, summary *domain.RunSummary) error
}

// ResultSubscriber consumes run summaries published by generators.
type ResultSubscriber interface {
	SubscribeSummaries(ctx context.Context, handler func(ctx context.Context, summary *domain.RunSummary) error) error
}

// RunCoordinator keeps counters shared by every generator taking part in a run
// and caches finished summaries.
type RunCoordinator interface {
	IncrCounter(ctx context.Context, runID, name string, delta int64) (int64, error)
	CacheSummary(ctx context.Context, summary *domain.RunSummary, ttl time.Duration) error
	CachedSummary(ctx context.Context, runID string) (*domain.RunSummary, error)
}

// RunObserver receives VU and request lifecycle notifications, e.g. for metrics.
type RunObserver interface {
	VUStarted(scenario string)
	VUFinished(scenario string, failed bool)
	RequestDone(result *domain.RequestResult)
	HookFailed(hook string)
}
