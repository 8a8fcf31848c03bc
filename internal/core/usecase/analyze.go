package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
	"github.com/asporlabs/aspor-intelligence/internal/core/prompt"
)

type AnalyzeRunConfig struct {
	SyncBudget time.Duration
	OutputCap  int
}

func (c AnalyzeRunConfig) normalize() AnalyzeRunConfig {
	out := c
	if out.SyncBudget <= 0 {
		out.SyncBudget = 25 * time.Second
	}
	if out.OutputCap <= 0 {
		out.OutputCap = domain.DefaultOutputCap
	}
	return out
}

// AnalyzeRunUseCase applies one of the two fixed prompts to an extracted run
// and invokes the LLM, synchronously when it answers within the budget and
// through the worker otherwise.
type AnalyzeRunUseCase struct {
	repo     ports.RunRepository
	storage  ports.ObjectStorage
	queue    ports.RunJobQueue
	analyzer ports.Analyzer
	catalog  *prompt.Catalog
	cfg      AnalyzeRunConfig
}

func NewAnalyzeRunUseCase(
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	queue ports.RunJobQueue,
	analyzer ports.Analyzer,
	catalog *prompt.Catalog,
	cfg AnalyzeRunConfig,
) *AnalyzeRunUseCase {
	return &AnalyzeRunUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		analyzer: analyzer,
		catalog:  catalog,
		cfg:      cfg.normalize(),
	}
}

// TriggerAnalysis runs the analysis for an extracted run. Re-triggering a
// run that is already ANALYZING or PROCESSING_ASYNC is a no-op returning the
// current state; a COMPLETED run returns its stored result.
func (uc *AnalyzeRunUseCase) TriggerAnalysis(ctx context.Context, userID, runID string, variant domain.ModelVariant) (*domain.Run, domain.Analysis, error) {
	template, err := uc.catalog.Resolve(variant)
	if err != nil {
		return nil, domain.Analysis{}, err
	}

	run, err := uc.repo.GetRun(ctx, userID, runID)
	if err != nil {
		return nil, domain.Analysis{}, fmt.Errorf("fetch run: %w", err)
	}

	switch run.Status {
	case domain.StatusCompleted:
		return run, domain.Analysis{Outcome: domain.AnalysisImmediate, Result: run.AnalysisResult}, nil
	case domain.StatusAnalyzing, domain.StatusProcessingAsync:
		return run, domain.Analysis{Outcome: domain.AnalysisDeferred}, nil
	case domain.StatusExtracted:
	default:
		return run, domain.Analysis{}, domain.WrapError(domain.ErrStatusConflict, "trigger analysis",
			fmt.Errorf("run is %s, analysis requires %s", run.Status, domain.StatusExtracted))
	}

	// From the claim on, a caller disconnect must not preempt the run; the
	// synchronous budget is the only bound on the model call.
	ctx = context.WithoutCancel(ctx)

	claimed, err := uc.repo.UpdateRunConditional(ctx, userID, runID, domain.StatusExtracted, domain.RunMutation{
		Status: domain.StatusAnalyzing,
		Model:  &variant,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrStatusConflict) {
			// A concurrent trigger claimed the run; report its state instead
			// of invoking the model twice.
			current, getErr := uc.repo.GetRun(ctx, userID, runID)
			if getErr != nil {
				return nil, domain.Analysis{}, fmt.Errorf("fetch run after conflict: %w", getErr)
			}
			return current, analysisStateOf(current), nil
		}
		return nil, domain.Analysis{}, fmt.Errorf("claim run for analysis: %w", err)
	}
	run = claimed

	input, err := uc.composeInput(ctx, run, template)
	if err != nil {
		return uc.failRun(ctx, run, domain.StatusAnalyzing, err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, uc.cfg.SyncBudget)
	result, err := uc.analyzer.Analyze(llmCtx, input)
	cancel()
	if err == nil {
		completed, persistErr := uc.complete(ctx, run, domain.StatusAnalyzing, result)
		if persistErr != nil {
			return uc.failRun(ctx, run, domain.StatusAnalyzing, persistErr)
		}
		return completed, domain.Analysis{Outcome: domain.AnalysisImmediate, Result: completed.AnalysisResult}, nil
	}

	if !deferEligible(err) {
		return uc.failRun(ctx, run, domain.StatusAnalyzing, err)
	}

	deferred, updateErr := uc.repo.UpdateRunConditional(ctx, userID, runID, domain.StatusAnalyzing, domain.RunMutation{
		Status: domain.StatusProcessingAsync,
	})
	if updateErr != nil {
		return nil, domain.Analysis{}, fmt.Errorf("hand off analysis: %w", updateErr)
	}
	if err := uc.queue.PublishRunJob(ctx, ports.RunJob{
		Kind:        ports.JobAnalyzeAsync,
		UserID:      userID,
		RunID:       runID,
		Model:       variant,
		PublishedAt: time.Now().UTC(),
	}); err != nil {
		return uc.failRun(ctx, deferred, domain.StatusProcessingAsync, fmt.Errorf("publish analysis job: %w", err))
	}
	return deferred, domain.Analysis{Outcome: domain.AnalysisDeferred}, nil
}

// CompleteAsync finishes a deferred analysis. Called by the worker; a run no
// longer in PROCESSING_ASYNC (or never claimed for analysis) is skipped so
// re-delivered jobs stay idempotent.
func (uc *AnalyzeRunUseCase) CompleteAsync(ctx context.Context, job ports.RunJob) error {
	run, err := uc.repo.GetRun(ctx, job.UserID, job.RunID)
	if err != nil {
		return fmt.Errorf("fetch run: %w", err)
	}
	if run.Status != domain.StatusProcessingAsync || run.Model == "" {
		return nil
	}

	template, err := uc.catalog.Resolve(run.Model)
	if err != nil {
		return uc.failAsync(ctx, run, err)
	}
	input, err := uc.composeInput(ctx, run, template)
	if err != nil {
		return uc.failAsync(ctx, run, err)
	}

	result, err := uc.analyzer.Analyze(ctx, input)
	if err != nil {
		return uc.failAsync(ctx, run, err)
	}
	if _, err := uc.complete(ctx, run, domain.StatusProcessingAsync, result); err != nil {
		return uc.failAsync(ctx, run, err)
	}
	return nil
}

// composeInput loads the extracted text and builds template + separator +
// text, byte-exact. The text was capped at extraction time; the template is
// never truncated.
func (uc *AnalyzeRunUseCase) composeInput(ctx context.Context, run *domain.Run, template string) (string, error) {
	if run.ExtractedTextKey == "" {
		return "", domain.WrapError(domain.ErrAnalysisFailed, "compose input", errors.New("run has no extracted text"))
	}
	reader, err := uc.storage.Open(ctx, run.ExtractedTextKey)
	if err != nil {
		return "", fmt.Errorf("open extracted text: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return prompt.Compose(template, string(raw)), nil
}

func (uc *AnalyzeRunUseCase) complete(ctx context.Context, run *domain.Run, expected domain.RunStatus, result string) (*domain.Run, error) {
	capped := domain.TruncateWithMarker(result, uc.cfg.OutputCap)
	now := time.Now().UTC()
	updated, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, expected, domain.RunMutation{
		Status:         domain.StatusCompleted,
		AnalysisResult: &capped,
		CompletedAt:    &now,
	})
	if err != nil {
		return nil, fmt.Errorf("mark run completed: %w", err)
	}
	return updated, nil
}

func (uc *AnalyzeRunUseCase) failRun(ctx context.Context, run *domain.Run, expected domain.RunStatus, cause error) (*domain.Run, domain.Analysis, error) {
	wrapped := domain.WrapError(domain.ErrAnalysisFailed, "analysis", cause)
	message := domain.TruncateError(wrapped.Error())
	failed, err := uc.repo.UpdateRunConditional(ctx, run.UserID, run.RunID, expected, domain.RunMutation{
		Status:       domain.StatusFailed,
		ErrorMessage: &message,
	})
	if err != nil {
		return nil, domain.Analysis{}, fmt.Errorf("%w; mark failed status: %v", wrapped, err)
	}
	return failed, domain.Analysis{}, wrapped
}

func (uc *AnalyzeRunUseCase) failAsync(ctx context.Context, run *domain.Run, cause error) error {
	_, _, err := uc.failRun(ctx, run, domain.StatusProcessingAsync, cause)
	return err
}

// deferEligible reports whether an LLM failure should hand the run to the
// worker instead of failing it: a spent synchronous budget or a transient
// provider error.
func deferEligible(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary)
}

func analysisStateOf(run *domain.Run) domain.Analysis {
	if run.Status == domain.StatusCompleted {
		return domain.Analysis{Outcome: domain.AnalysisImmediate, Result: run.AnalysisResult}
	}
	return domain.Analysis{Outcome: domain.AnalysisDeferred}
}
