package usecase

import (
	"context"
	"fmt"

	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

// RunJobProcessor dispatches queued out-of-band jobs to the coordinator that
// owns them.
type RunJobProcessor struct {
	extract *ExtractRunUseCase
	analyze *AnalyzeRunUseCase
}

func NewRunJobProcessor(extract *ExtractRunUseCase, analyze *AnalyzeRunUseCase) *RunJobProcessor {
	return &RunJobProcessor{extract: extract, analyze: analyze}
}

func (p *RunJobProcessor) ProcessRunJob(ctx context.Context, job ports.RunJob) error {
	switch job.Kind {
	case ports.JobExtractFallback:
		return p.extract.CompleteFallback(ctx, job.UserID, job.RunID)
	case ports.JobAnalyzeAsync:
		return p.analyze.CompleteAsync(ctx, job)
	default:
		return fmt.Errorf("unknown run job kind: %q", job.Kind)
	}
}
