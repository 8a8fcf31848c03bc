package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

// Extractor is the fast OCR path: it pulls the text layer out of a PDF (or
// passes plain text through) without calling any model. Scanned documents
// with no text layer surface as ErrUnsupportedContent so the coordinator
// can hand the run to the vision fallback.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, fileKey string) (string, error) {
	reader, err := e.storage.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch strings.ToLower(path.Ext(fileKey)) {
	case ".pdf":
		return extractPDFText(ctx, raw)
	case ".txt":
		if !utf8.Valid(raw) {
			return "", domain.WrapError(domain.ErrUnsupportedContent, "extract text", fmt.Errorf("invalid utf-8 in %s", fileKey))
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		// Images and anything else have no text layer to read.
		return "", domain.WrapError(domain.ErrUnsupportedContent, "extract text", fmt.Errorf("no text layer for %s", fileKey))
	}
}

func extractPDFText(ctx context.Context, raw []byte) (text string, err error) {
	defer func() {
		// The pdf package panics on some malformed files; a broken text
		// layer is unsupported content, not a crash.
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrUnsupportedContent, "parse pdf", fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedContent, "parse pdf", err)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return strings.TrimSpace(builder.String()), nil
}
