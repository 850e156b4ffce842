package app

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")

	ErrBookNotFound         = fmt.Errorf("book %w", ErrNotFound)
	ErrBookForbidden        = fmt.Errorf("book %w", ErrForbidden)
	ErrPageNotFound         = fmt.Errorf("page %w", ErrNotFound)
	ErrHighlightNotFound    = fmt.Errorf("highlight %w", ErrNotFound)
	ErrHighlightForbidden   = fmt.Errorf("highlight %w", ErrForbidden)
	ErrExplanationNotFound  = fmt.Errorf("explanation %w", ErrNotFound)
	ErrExplanationForbidden = fmt.Errorf("explanation %w", ErrForbidden)

	ErrUnsupportedFile  = errors.New("unsupported file type: only PDF files are accepted")
	ErrFileTooLarge     = errors.New("file too large")
	ErrStorageProvider  = errors.New("storage provider not configured")
	ErrEnqueue          = errors.New("failed to enqueue book processing")
	ErrAIUnavailable    = errors.New("ai generator not configured")
	ErrAIUpstream       = errors.New("ai provider request failed")
	ErrInvalidFileToken = errors.New("invalid file token")
	ErrStorageInUse     = errors.New("stored file already belongs to another book")

	ErrFileTokensUnavailable = errors.New("file tokens not configured")
)

// invalid wraps a validation failure so callers can match ErrValidation while
// keeping the field messages.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}
