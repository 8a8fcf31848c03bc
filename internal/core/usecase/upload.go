package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
)

// UploadURLUseCase issues time-limited signed upload URLs. The upload itself
// goes straight to the object store; the run is registered afterwards with
// the returned file key.
type UploadURLUseCase struct {
	storage ports.ObjectStorage
	expiry  time.Duration
}

func NewUploadURLUseCase(storage ports.ObjectStorage, expiry time.Duration) *UploadURLUseCase {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &UploadURLUseCase{storage: storage, expiry: expiry}
}

// IssueUploadURL returns the object key the client must upload to and a
// presigned PUT URL for it.
func (uc *UploadURLUseCase) IssueUploadURL(ctx context.Context, filename string) (key, url string, err error) {
	key = fmt.Sprintf("uploads/%s_%s", uuid.NewString(), sanitizeFilename(filename))
	url, err = uc.storage.PresignedPutURL(ctx, key, uc.expiry)
	if err != nil {
		return "", "", fmt.Errorf("presign upload url: %w", err)
	}
	return key, url, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
