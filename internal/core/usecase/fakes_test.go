package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]*domain.Run

	createErr error
	updateErr error
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*domain.Run)}
}

func runKey(userID, runID string) string {
	return userID + "/" + runID
}

func (r *fakeRunRepo) CreateRun(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	key := runKey(run.UserID, run.RunID)
	if _, ok := r.runs[key]; ok {
		return domain.WrapError(domain.ErrAlreadyExists, "create run", fmt.Errorf("run %s", run.RunID))
	}
	copied := *run
	r.runs[key] = &copied
	return nil
}

func (r *fakeRunRepo) GetRun(_ context.Context, userID, runID string) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runKey(userID, runID)]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("run %s", runID))
	}
	copied := *run
	return &copied, nil
}

func (r *fakeRunRepo) UpdateRunConditional(_ context.Context, userID, runID string, expectedStatus domain.RunStatus, mutation domain.RunMutation) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	run, ok := r.runs[runKey(userID, runID)]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "update run", fmt.Errorf("run %s", runID))
	}
	if run.Status != expectedStatus || !domain.CanTransition(run.Status, mutation.Status) {
		return nil, domain.WrapError(domain.ErrStatusConflict, "update run",
			fmt.Errorf("status is %s, expected %s", run.Status, expectedStatus))
	}

	run.Status = mutation.Status
	if mutation.Model != nil {
		run.Model = *mutation.Model
	}
	if mutation.ExtractedTextKey != nil {
		run.ExtractedTextKey = *mutation.ExtractedTextKey
	}
	if mutation.ExtractedTextLength != nil {
		run.ExtractedTextLength = *mutation.ExtractedTextLength
	}
	if mutation.ExtractionMethod != nil {
		run.ExtractionMethod = *mutation.ExtractionMethod
	}
	if mutation.AnalysisResult != nil {
		run.AnalysisResult = *mutation.AnalysisResult
	}
	if mutation.ErrorMessage != nil {
		run.ErrorMessage = *mutation.ErrorMessage
	}
	if mutation.ExtractedAt != nil {
		run.ExtractedAt = mutation.ExtractedAt
	}
	if mutation.CompletedAt != nil {
		run.CompletedAt = mutation.CompletedAt
	}

	copied := *run
	return &copied, nil
}

func (r *fakeRunRepo) ListRunsByUser(_ context.Context, userID string, limit int) ([]domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Run
	for _, run := range r.runs {
		if run.UserID == userID {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// seed installs a run directly, bypassing transition checks.
func (r *fakeRunRepo) seed(run domain.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := run
	r.runs[runKey(run.UserID, run.RunID)] = &copied
}

func (r *fakeRunRepo) status(userID, runID string) domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runKey(userID, runID)]
	if !ok {
		return ""
	}
	return run.Status
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	saveErr error
	openErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader, _ int64, _ string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) PresignedPutURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}

func (s *fakeStorage) object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	return raw, ok
}

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []ports.RunJob
	publishErr error
}

func (q *fakeQueue) PublishRunJob(_ context.Context, job ports.RunJob) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) SubscribeRunJobs(context.Context, func(context.Context, ports.RunJob) error) error {
	return nil
}

func (q *fakeQueue) published() []ports.RunJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ports.RunJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

type fakeTextExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeTextExtractor) Extract(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeVisionExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeVisionExtractor) ExtractVision(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeAnalyzer struct {
	result    string
	err       error
	calls     int
	lastInput string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, input string) (string, error) {
	f.calls++
	f.lastInput = input
	return f.result, f.err
}

// ctxCheckedExtractor fails when its context is already done, the way the
// real engines do.
type ctxCheckedExtractor struct {
	text string
}

func (f *ctxCheckedExtractor) Extract(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.text, nil
}

type ctxCheckedAnalyzer struct {
	result string
}

func (f *ctxCheckedAnalyzer) Analyze(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.result, nil
}
