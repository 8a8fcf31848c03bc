package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

const (
	// minMeaningfulText is the floor below which fast-path output is treated
	// as a failed scan and handed to the vision fallback.
	minMeaningfulText = 50

	extractionMethodFast   = "pdftext"
	extractionMethodVision = "vision"
)

type ExtractRunConfig struct {
	FastPathBudget time.Duration
	InputCap       int
}

func (c ExtractRunConfig) normalize() ExtractRunConfig {
	out := c
	if out.FastPathBudget <= 0 {
		out.FastPathBudget = 3 * time.Second
	}
	if out.InputCap <= 0 {
		out.InputCap = domain.DefaultInputCap
	}
	return out
}

// ExtractRunUseCase drives one run through text extraction: a bounded fast
// OCR attempt first, then a vision-model fallback completed out-of-band.
type ExtractRunUseCase struct {
	repo    ports.RunRepository
	storage ports.ObjectStorage
	queue   ports.RunJobQueue
	fast    ports.TextExtractor
	vision  ports.VisionExtractor
	cfg     ExtractRunConfig
}

func NewExtractRunUseCase(
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	queue ports.RunJobQueue,
	fast ports.TextExtractor,
	vision ports.VisionExtractor,
	cfg ExtractRunConfig,
) *ExtractRunUseCase {
	return &ExtractRunUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		fast:    fast,
		vision:  vision,
		cfg:     cfg.normalize(),
	}
}

// TriggerExtraction registers an uploaded document as a new run and starts
// extraction for it.
func (uc *ExtractRunUseCase) TriggerExtraction(ctx context.Context, userID, fileKey string) (*domain.Run, domain.Extraction, error) {
	if strings.TrimSpace(fileKey) == "" {
		return nil, domain.Extraction{}, domain.WrapError(domain.ErrExtractionFailed, "trigger extraction", errors.New("file key is required"))
	}

	// A caller disconnect must not preempt the run mid-chain; the fast-path
	// budget is the only bound on this side.
	ctx = context.WithoutCancel(ctx)

	run := &domain.Run{
		UserID:    userID,
		RunID:     uuid.NewString(),
		Status:    domain.StatusUploaded,
		FileKey:   fileKey,
		FileName:  path.Base(fileKey),
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.repo.CreateRun(ctx, run); err != nil {
		return nil, domain.Extraction{}, fmt.Errorf("create run: %w", err)
	}

	return uc.extract(ctx, run)
}

// ResumeExtraction re-triggers extraction for an existing run. A run no
// longer in UPLOADED is returned as-is: retried client requests must not
// restart an extraction chain already in flight.
func (uc *ExtractRunUseCase) ResumeExtraction(ctx context.Context, userID, runID string) (*domain.Run, domain.Extraction, error) {
	ctx = context.WithoutCancel(ctx)
	run, err := uc.repo.GetRun(ctx, userID, runID)
	if err != nil {
		return nil, domain.Extraction{}, fmt.Errorf("fetch run: %w", err)
	}
	if run.Status != domain.StatusUploaded {
		return run, extractionStateOf(run), nil
	}
	return uc.extract(ctx, run)
}

func (uc *ExtractRunUseCase) extract(ctx context.Context, run *domain.Run) (*domain.Run, domain.Extraction, error) {
	claimed, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, domain.StatusUploaded, domain.RunMutation{
		Status: domain.StatusExtracting,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrStatusConflict) {
			// Lost the race against a concurrent trigger; the winner owns
			// the extraction chain.
			current, getErr := uc.repo.GetRun(ctx, run.UserID, run.RunID)
			if getErr != nil {
				return nil, domain.Extraction{}, fmt.Errorf("fetch run after conflict: %w", getErr)
			}
			return current, extractionStateOf(current), nil
		}
		return nil, domain.Extraction{}, fmt.Errorf("claim run for extraction: %w", err)
	}
	run = claimed

	text, fastErr := uc.attemptFastPath(ctx, run.FileKey)
	if fastErr == nil {
		updated, persistErr := uc.persistExtracted(ctx, run, domain.StatusExtracting, text, extractionMethodFast)
		if persistErr != nil {
			return uc.failRun(ctx, run, domain.StatusExtracting, domain.ErrExtractionFailed, persistErr)
		}
		return updated, domain.Extraction{
			Outcome: domain.ExtractionImmediate,
			Text:    text,
			Method:  extractionMethodFast,
		}, nil
	}

	if !fallbackEligible(fastErr) {
		return uc.failRun(ctx, run, domain.StatusExtracting, domain.ErrExtractionFailed, fastErr)
	}

	deferred, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, domain.StatusExtracting, domain.RunMutation{
		Status: domain.StatusProcessingAsync,
	})
	if err != nil {
		return nil, domain.Extraction{}, fmt.Errorf("hand off to fallback: %w", err)
	}
	if err := uc.queue.PublishRunJob(ctx, ports.RunJob{
		Kind:        ports.JobExtractFallback,
		UserID:      run.UserID,
		RunID:       run.RunID,
		PublishedAt: time.Now().UTC(),
	}); err != nil {
		return uc.failRun(ctx, deferred, domain.StatusProcessingAsync, domain.ErrExtractionFailed, fmt.Errorf("publish fallback job: %w", err))
	}
	return deferred, domain.Extraction{
		Outcome: domain.ExtractionDeferred,
		Reason:  fastErr.Error(),
	}, nil
}

// attemptFastPath runs the OCR extractor under the per-attempt budget and
// applies the meaningful-text floor.
func (uc *ExtractRunUseCase) attemptFastPath(ctx context.Context, fileKey string) (string, error) {
	fastCtx, cancel := context.WithTimeout(ctx, uc.cfg.FastPathBudget)
	defer cancel()

	text, err := uc.fast.Extract(fastCtx, fileKey)
	if err != nil {
		return "", fmt.Errorf("fast extraction: %w", err)
	}
	if len(strings.TrimSpace(text)) < minMeaningfulText {
		return "", domain.WrapError(domain.ErrUnsupportedContent, "fast extraction", errors.New("too little text in text layer"))
	}
	return text, nil
}

// CompleteFallback finishes a deferred extraction with the vision extractor.
// Called by the worker; PROCESSING_ASYNC is shared with deferred analysis, so
// a run with a claimed model variant or extracted text already present is a
// re-delivered or misrouted job and is skipped.
func (uc *ExtractRunUseCase) CompleteFallback(ctx context.Context, userID, runID string) error {
	run, err := uc.repo.GetRun(ctx, userID, runID)
	if err != nil {
		return fmt.Errorf("fetch run: %w", err)
	}
	if run.Status != domain.StatusProcessingAsync || run.Model != "" || run.ExtractedTextKey != "" {
		return nil
	}

	text, err := uc.vision.ExtractVision(ctx, run.FileKey)
	if err == nil && len(strings.TrimSpace(text)) == 0 {
		err = domain.WrapError(domain.ErrExtractionFailed, "vision extraction", errors.New("empty extracted text"))
	}
	if err != nil {
		_, _, failErr := uc.failRun(ctx, run, domain.StatusProcessingAsync, domain.ErrExtractionFailed, err)
		return failErr
	}

	if _, err := uc.persistExtracted(ctx, run, domain.StatusProcessingAsync, text, extractionMethodVision); err != nil {
		_, _, failErr := uc.failRun(ctx, run, domain.StatusProcessingAsync, domain.ErrExtractionFailed, err)
		return failErr
	}
	return nil
}

func (uc *ExtractRunUseCase) persistExtracted(ctx context.Context, run *domain.Run, expected domain.RunStatus, text, method string) (*domain.Run, error) {
	capped := domain.TruncateWithMarker(text, uc.cfg.InputCap)
	textKey := fmt.Sprintf("extracted/%s.txt", run.RunID)

	reader := strings.NewReader(capped)
	if err := uc.storage.Save(ctx, textKey, reader, int64(len(capped)), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("save extracted text: %w", err)
	}

	now := time.Now().UTC()
	length := len(capped)
	updated, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, expected, domain.RunMutation{
		Status:              domain.StatusExtracted,
		ExtractedTextKey:    &textKey,
		ExtractedTextLength: &length,
		ExtractionMethod:    &method,
		ExtractedAt:         &now,
	})
	if err != nil {
		return nil, fmt.Errorf("mark run extracted: %w", err)
	}
	return updated, nil
}

func (uc *ExtractRunUseCase) failRun(ctx context.Context, run *domain.Run, expected domain.RunStatus, kind error, cause error) (*domain.Run, domain.Extraction, error) {
	wrapped := domain.WrapError(kind, "extraction", cause)
	message := domain.TruncateError(wrapped.Error())
	failed, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, expected, domain.RunMutation{
		Status:       domain.StatusFailed,
		ErrorMessage: &message,
	})
	if err != nil {
		return nil, domain.Extraction{}, fmt.Errorf("%w; mark failed status: %v", wrapped, err)
	}
	return failed, domain.Extraction{Outcome: domain.ExtractionFailedOut, Reason: message}, wrapped
}

// fallbackEligible reports whether a fast-path error should hand the run to
// the vision fallback instead of failing it. Unsupported content and a spent
// attempt budget are the two fallback triggers.
func fallbackEligible(err error) bool {
	return domain.IsKind(err, domain.ErrUnsupportedContent) ||
		errors.Is(err, context.DeadlineExceeded) ||
		domain.IsKind(err, domain.ErrTemporary)
}

// extractionStateOf maps an observed run status to the extraction outcome a
// duplicate trigger should report.
func extractionStateOf(run *domain.Run) domain.Extraction {
	switch run.Status {
	case domain.StatusExtracting, domain.StatusProcessingAsync:
		return domain.Extraction{Outcome: domain.ExtractionDeferred}
	case domain.StatusFailed:
		return domain.Extraction{Outcome: domain.ExtractionFailedOut, Reason: run.ErrorMessage}
	default:
		return domain.Extraction{Outcome: domain.ExtractionImmediate, Method: run.ExtractionMethod}
	}
}
