package usecase

import (
	"context"
	"fmt"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

const defaultHistoryLimit = 50

// RunStatusUseCase is the read side of the polling protocol. It never
// mutates a run.
type RunStatusUseCase struct {
	repo         ports.RunRepository
	historyLimit int
}

func NewRunStatusUseCase(repo ports.RunRepository, historyLimit int) *RunStatusUseCase {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &RunStatusUseCase{repo: repo, historyLimit: historyLimit}
}

func (uc *RunStatusUseCase) GetStatus(ctx context.Context, userID, runID string) (*domain.Run, error) {
	run, err := uc.repo.GetRun(ctx, userID, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run: %w", err)
	}
	return run, nil
}

// History returns the user's runs newest first, bounded by the configured
// limit.
func (uc *RunStatusUseCase) History(ctx context.Context, userID string) ([]domain.Run, error) {
	runs, err := uc.repo.ListRunsByUser(ctx, userID, uc.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
