package ports

import (
	"context"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
)

// ExtractionTrigger is the inbound contract for registering an upload and
// driving extraction. A deferred outcome means the fallback path owns the
// run until it reaches EXTRACTED or FAILED.
type ExtractionTrigger interface {
	TriggerExtraction(ctx context.Context, userID, fileKey string) (*domain.Run, domain.Extraction, error)
}

// AnalysisTrigger is the inbound contract for running the fixed-prompt
// analysis over an extracted run.
type AnalysisTrigger interface {
	TriggerAnalysis(ctx context.Context, userID, runID string, variant domain.ModelVariant) (*domain.Run, domain.Analysis, error)
}

// RunStatusReader is the read side a client polls to completion.
type RunStatusReader interface {
	GetStatus(ctx context.Context, userID, runID string) (*domain.Run, error)
}

// RunHistoryReader lists a user's runs newest first.
type RunHistoryReader interface {
	History(ctx context.Context, userID string) ([]domain.Run, error)
}

// RunJobProcessor is the worker-side contract completing out-of-band jobs.
type RunJobProcessor interface {
	ProcessRunJob(ctx context.Context, job RunJob) error
}
