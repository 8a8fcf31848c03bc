package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/resilience"
)

// Client talks to an Ollama server hosting both the analysis model and the
// vision model used as the extraction fallback.
type Client struct {
	baseURL     string
	genModel    string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, genModel, visionModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		executor:    executor,
	}
}

// Analyzer runs the composed analysis prompt against the generation model.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, input string) (string, error) {
	reqBody := map[string]any{
		"model":  a.client.genModel,
		"prompt": input,
		"stream": false,
		"options": map[string]any{
			"temperature": 0.1,
		},
	}
	text, err := a.client.generate(ctx, "analyze", reqBody)
	if err != nil {
		return "", wrapTemporaryIfNeeded("analyze", err)
	}
	return text, nil
}

// VisionExtractor reads the raw document from object storage and asks the
// vision model for its full text.
type VisionExtractor struct {
	client  *Client
	storage ports.ObjectStorage
}

func NewVisionExtractor(client *Client, storage ports.ObjectStorage) *VisionExtractor {
	return &VisionExtractor{client: client, storage: storage}
}

func (e *VisionExtractor) ExtractVision(ctx context.Context, fileKey string) (string, error) {
	reader, err := e.storage.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	reqBody := map[string]any{
		"model":  e.client.visionModel,
		"prompt": visionExtractionPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(raw)},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.0,
		},
	}
	text, err := e.client.generate(ctx, "extract_vision", reqBody)
	if err != nil {
		return "", wrapTemporaryIfNeeded("extract_vision", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrExtractionFailed, "extract_vision", fmt.Errorf("model returned no text"))
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
