package ports

import (
	"context"
	"io"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
)

// RunRepository persists run state. UpdateConditional is the only mutation
// primitive after creation: it succeeds only when the stored status equals
// expectedStatus at write time.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, userID, runID string) (*domain.Run, error)
	UpdateRunConditional(ctx context.Context, userID, runID string, expectedStatus domain.RunStatus, mutation domain.RunMutation) (*domain.Run, error)
	ListRunsByUser(ctx context.Context, userID string, limit int) ([]domain.Run, error)
}

// ObjectStorage stores source documents and extracted text.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedPutURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// RunJobKind selects which out-of-band step a queued job performs.
type RunJobKind string

const (
	JobExtractFallback RunJobKind = "extract_fallback"
	JobAnalyzeAsync    RunJobKind = "analyze_async"
)

// RunJob is the payload handed to the worker for out-of-band completion.
// PublishedAt is stamped at publish time so the consumer can measure how
// long the job sat on the queue.
type RunJob struct {
	Kind        RunJobKind          `json:"kind"`
	UserID      string              `json:"userId"`
	RunID       string              `json:"runId"`
	Model       domain.ModelVariant `json:"model,omitempty"`
	PublishedAt time.Time           `json:"publishedAt"`
}

// RunJobQueue publishes/consumes out-of-band run jobs.
type RunJobQueue interface {
	PublishRunJob(ctx context.Context, job RunJob) error
	SubscribeRunJobs(ctx context.Context, handler func(context.Context, RunJob) error) error
}

// TextExtractor is the fast OCR path. It fails with ErrUnsupportedContent
// when the document has no usable text layer.
type TextExtractor interface {
	Extract(ctx context.Context, fileKey string) (string, error)
}

// VisionExtractor is the fallback path: a vision-capable model reading the
// raw document.
type VisionExtractor interface {
	ExtractVision(ctx context.Context, fileKey string) (string, error)
}

// Analyzer invokes the LLM with a fully composed prompt.
type Analyzer interface {
	Analyze(ctx context.Context, input string) (string, error)
}
