package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

func newExtractFixture(cfg ExtractRunConfig) (*ExtractRunUseCase, *fakeRunRepo, *fakeStorage, *fakeQueue, *fakeTextExtractor, *fakeVisionExtractor) {
	repo := newFakeRunRepo()
	storage := newFakeStorage()
	queue := &fakeQueue{}
	fast := &fakeTextExtractor{}
	vision := &fakeVisionExtractor{}
	uc := NewExtractRunUseCase(repo, storage, queue, fast, vision, cfg)
	return uc, repo, storage, queue, fast, vision
}

func TestTriggerExtractionFastPathSucceeds(t *testing.T) {
	uc, repo, storage, queue, fast, _ := newExtractFixture(ExtractRunConfig{})
	fast.text = strings.Repeat("texto legible del documento ", 10)

	run, extraction, err := uc.TriggerExtraction(context.Background(), "user-1", "uploads/contrato.pdf")
	if err != nil {
		t.Fatalf("trigger extraction: %v", err)
	}

	if extraction.Outcome != domain.ExtractionImmediate {
		t.Fatalf("expected immediate outcome, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusExtracted {
		t.Fatalf("expected EXTRACTED, got %s", run.Status)
	}
	if run.ExtractionMethod != "pdftext" {
		t.Fatalf("expected pdftext method, got %q", run.ExtractionMethod)
	}
	if run.FileName != "contrato.pdf" {
		t.Fatalf("expected file name from key, got %q", run.FileName)
	}
	if run.ExtractedAt == nil {
		t.Fatalf("expected extractedAt set")
	}
	if run.ExtractedTextLength != len(fast.text) {
		t.Fatalf("expected text length %d, got %d", len(fast.text), run.ExtractedTextLength)
	}

	stored, ok := storage.object(run.ExtractedTextKey)
	if !ok {
		t.Fatalf("expected extracted text stored at %q", run.ExtractedTextKey)
	}
	if string(stored) != fast.text {
		t.Fatalf("stored text differs from extracted text")
	}
	if len(queue.published()) != 0 {
		t.Fatalf("fast path must not publish jobs")
	}
	if got := repo.status("user-1", run.RunID); got != domain.StatusExtracted {
		t.Fatalf("persisted status %s, want EXTRACTED", got)
	}
}

func TestTriggerExtractionCapsLongText(t *testing.T) {
	uc, _, storage, _, fast, _ := newExtractFixture(ExtractRunConfig{InputCap: 100})
	fast.text = strings.Repeat("a", 500)

	run, _, err := uc.TriggerExtraction(context.Background(), "user-1", "uploads/largo.pdf")
	if err != nil {
		t.Fatalf("trigger extraction: %v", err)
	}

	stored, _ := storage.object(run.ExtractedTextKey)
	if !strings.HasSuffix(string(stored), domain.TruncationMarker) {
		t.Fatalf("expected truncation marker on capped text")
	}
	wantLen := 100 + len(domain.TruncationMarker)
	if run.ExtractedTextLength != wantLen {
		t.Fatalf("expected recorded length %d, got %d", wantLen, run.ExtractedTextLength)
	}
}

func TestTriggerExtractionFallsBackOnUnsupportedContent(t *testing.T) {
	uc, repo, _, queue, fast, vision := newExtractFixture(ExtractRunConfig{})
	fast.err = domain.WrapError(domain.ErrUnsupportedContent, "fast extraction", errors.New("no text layer"))

	run, extraction, err := uc.TriggerExtraction(context.Background(), "user-1", "uploads/escaneado.pdf")
	if err != nil {
		t.Fatalf("trigger extraction: %v", err)
	}

	if extraction.Outcome != domain.ExtractionDeferred {
		t.Fatalf("expected deferred outcome, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusProcessingAsync {
		t.Fatalf("expected PROCESSING_ASYNC, got %s", run.Status)
	}
	if vision.calls != 0 {
		t.Fatalf("trigger must not call the vision extractor inline")
	}

	jobs := queue.published()
	if len(jobs) != 1 {
		t.Fatalf("expected one published job, got %d", len(jobs))
	}
	if jobs[0].Kind != ports.JobExtractFallback {
		t.Fatalf("expected extract_fallback job, got %s", jobs[0].Kind)
	}
	if jobs[0].RunID != run.RunID || jobs[0].UserID != "user-1" {
		t.Fatalf("job does not reference the run")
	}
	if jobs[0].PublishedAt.IsZero() {
		t.Fatalf("job must carry its publish timestamp")
	}
	if got := repo.status("user-1", run.RunID); got != domain.StatusProcessingAsync {
		t.Fatalf("persisted status %s, want PROCESSING_ASYNC", got)
	}
}

func TestTriggerExtractionFallsBackOnShortText(t *testing.T) {
	uc, _, _, queue, fast, _ := newExtractFixture(ExtractRunConfig{})
	fast.text = "poco"

	run, extraction, err := uc.TriggerExtraction(context.Background(), "user-1", "uploads/vacio.pdf")
	if err != nil {
		t.Fatalf("trigger extraction: %v", err)
	}
	if extraction.Outcome != domain.ExtractionDeferred {
		t.Fatalf("text below the floor must defer, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusProcessingAsync {
		t.Fatalf("expected PROCESSING_ASYNC, got %s", run.Status)
	}
	if len(queue.published()) != 1 {
		t.Fatalf("expected one fallback job")
	}
}

func TestTriggerExtractionFailsOnPermanentError(t *testing.T) {
	uc, repo, _, queue, fast, _ := newExtractFixture(ExtractRunConfig{})
	fast.err = errors.New("corrupted container")

	run, extraction, err := uc.TriggerExtraction(context.Background(), "user-1", "uploads/roto.pdf")
	if err == nil {
		t.Fatalf("expected error for permanent extraction failure")
	}
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if extraction.Outcome != domain.ExtractionFailedOut {
		t.Fatalf("expected failed outcome, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED run, got %s", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatalf("expected persisted error message")
	}
	if len(run.ErrorMessage) > domain.MaxErrorMessageLength {
		t.Fatalf("error message exceeds cap: %d", len(run.ErrorMessage))
	}
	if len(queue.published()) != 0 {
		t.Fatalf("failed run must not publish jobs")
	}
	if got := repo.status("user-1", run.RunID); got != domain.StatusFailed {
		t.Fatalf("persisted status %s, want FAILED", got)
	}
}

func TestResumeExtractionIsNoOpForActiveRun(t *testing.T) {
	uc, repo, _, queue, fast, _ := newExtractFixture(ExtractRunConfig{})
	repo.seed(domain.Run{
		UserID:    "user-1",
		RunID:     "run-1",
		Status:    domain.StatusProcessingAsync,
		FileKey:   "uploads/doc.pdf",
		CreatedAt: time.Now().UTC(),
	})

	run, extraction, err := uc.ResumeExtraction(context.Background(), "user-1", "run-1")
	if err != nil {
		t.Fatalf("resume extraction: %v", err)
	}
	if extraction.Outcome != domain.ExtractionDeferred {
		t.Fatalf("expected deferred outcome for in-flight run, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusProcessingAsync {
		t.Fatalf("run status must be untouched, got %s", run.Status)
	}
	if fast.calls != 0 {
		t.Fatalf("resume of an in-flight run must not re-run extraction")
	}
	if len(queue.published()) != 0 {
		t.Fatalf("resume of an in-flight run must not publish jobs")
	}
}

func TestResumeExtractionUnknownRun(t *testing.T) {
	uc, _, _, _, _, _ := newExtractFixture(ExtractRunConfig{})

	_, _, err := uc.ResumeExtraction(context.Background(), "user-1", "missing")
	if err == nil || !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteFallbackExtractsWithVision(t *testing.T) {
	uc, repo, storage, _, _, vision := newExtractFixture(ExtractRunConfig{})
	repo.seed(domain.Run{
		UserID:    "user-1",
		RunID:     "run-1",
		Status:    domain.StatusProcessingAsync,
		FileKey:   "uploads/escaneado.pdf",
		CreatedAt: time.Now().UTC(),
	})
	vision.text = "Texto reconocido por el modelo de visión en el documento escaneado."

	if err := uc.CompleteFallback(context.Background(), "user-1", "run-1"); err != nil {
		t.Fatalf("complete fallback: %v", err)
	}

	run, err := repo.GetRun(context.Background(), "user-1", "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != domain.StatusExtracted {
		t.Fatalf("expected EXTRACTED after fallback, got %s", run.Status)
	}
	if run.ExtractionMethod != "vision" {
		t.Fatalf("expected vision method, got %q", run.ExtractionMethod)
	}
	if _, ok := storage.object(run.ExtractedTextKey); !ok {
		t.Fatalf("expected extracted text stored")
	}
}

func TestCompleteFallbackSkipsRunNotDeferred(t *testing.T) {
	uc, repo, _, _, _, vision := newExtractFixture(ExtractRunConfig{})
	repo.seed(domain.Run{
		UserID:    "user-1",
		RunID:     "run-1",
		Status:    domain.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	})

	if err := uc.CompleteFallback(context.Background(), "user-1", "run-1"); err != nil {
		t.Fatalf("complete fallback: %v", err)
	}
	if vision.calls != 0 {
		t.Fatalf("re-delivered job for a settled run must not call the model")
	}
	if got := repo.status("user-1", "run-1"); got != domain.StatusCompleted {
		t.Fatalf("settled run must stay %s, got %s", domain.StatusCompleted, got)
	}
}

func TestCompleteFallbackSkipsRunPendingAnalysis(t *testing.T) {
	uc, repo, _, _, _, vision := newExtractFixture(ExtractRunConfig{})
	// PROCESSING_ASYNC with a claimed variant and extracted text means the
	// run is parked on deferred analysis; a re-delivered fallback job must
	// not re-extract it.
	repo.seed(domain.Run{
		UserID:           "user-1",
		RunID:            "run-1",
		Status:           domain.StatusProcessingAsync,
		Model:            domain.ModelVariantA,
		FileKey:          "uploads/doc.pdf",
		ExtractedTextKey: "extracted/run-1.txt",
		ExtractionMethod: "pdftext",
		CreatedAt:        time.Now().UTC(),
	})
	vision.text = "texto que no debe reemplazar al extraído"

	if err := uc.CompleteFallback(context.Background(), "user-1", "run-1"); err != nil {
		t.Fatalf("complete fallback: %v", err)
	}
	if vision.calls != 0 {
		t.Fatalf("run pending analysis must not reach the vision extractor")
	}

	run, _ := repo.GetRun(context.Background(), "user-1", "run-1")
	if run.Status != domain.StatusProcessingAsync {
		t.Fatalf("run pending analysis must stay PROCESSING_ASYNC, got %s", run.Status)
	}
	if run.ExtractionMethod != "pdftext" {
		t.Fatalf("extraction method must be untouched, got %q", run.ExtractionMethod)
	}
}

func TestCompleteFallbackFailsRunOnEmptyVisionText(t *testing.T) {
	uc, repo, _, _, _, vision := newExtractFixture(ExtractRunConfig{})
	repo.seed(domain.Run{
		UserID:    "user-1",
		RunID:     "run-1",
		Status:    domain.StatusProcessingAsync,
		FileKey:   "uploads/ilegible.pdf",
		CreatedAt: time.Now().UTC(),
	})
	vision.text = "   "

	err := uc.CompleteFallback(context.Background(), "user-1", "run-1")
	if err == nil || !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}

	run, _ := repo.GetRun(context.Background(), "user-1", "run-1")
	if run.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatalf("expected persisted error message")
	}
}

func TestTriggerExtractionSurvivesCallerDisconnect(t *testing.T) {
	repo := newFakeRunRepo()
	storage := newFakeStorage()
	queue := &fakeQueue{}
	fast := &ctxCheckedExtractor{text: strings.Repeat("texto legible del documento ", 10)}
	uc := NewExtractRunUseCase(repo, storage, queue, fast, &fakeVisionExtractor{}, ExtractRunConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, extraction, err := uc.TriggerExtraction(ctx, "user-1", "uploads/contrato.pdf")
	if err != nil {
		t.Fatalf("a disconnected caller must not fail the run: %v", err)
	}
	if extraction.Outcome != domain.ExtractionImmediate {
		t.Fatalf("expected immediate outcome, got %s", extraction.Outcome)
	}
	if run.Status != domain.StatusExtracted {
		t.Fatalf("expected EXTRACTED, got %s", run.Status)
	}
	if got := repo.status("user-1", run.RunID); got != domain.StatusExtracted {
		t.Fatalf("persisted status %s, want EXTRACTED", got)
	}
}

func TestTriggerExtractionRequiresFileKey(t *testing.T) {
	uc, _, _, _, _, _ := newExtractFixture(ExtractRunConfig{})

	_, _, err := uc.TriggerExtraction(context.Background(), "user-1", "   ")
	if err == nil || !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed for missing file key, got %v", err)
	}
}
