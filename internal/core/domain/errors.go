package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("run not found")
	ErrAlreadyExists      = errors.New("run already exists")
	ErrStatusConflict     = errors.New("run status conflict")
	ErrInvalidModel       = errors.New("invalid model variant")
	ErrUnsupportedContent = errors.New("unsupported document content")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrAnalysisFailed     = errors.New("analysis failed")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
