package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/courtfetch/models"
)

// categorizeError wraps raw driver errors into typed ScrapeErrors so the
// session can render the right message and the API the right status.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, ErrElementNotFound):
		return models.NewScrapeError(models.ErrCodeElementNotFound, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeInternal, msg, err)
	}
}

// failureMessage renders err as the text shown inside an error fragment.
func failureMessage(err error) string {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		return "Unexpected error: " + err.Error()
	}
	detail := se.Message
	if se.Err != nil {
		detail = fmt.Sprintf("%s (%v)", se.Message, se.Err)
	}
	switch se.Code {
	case models.ErrCodeElementNotFound:
		return "Element not found: " + detail
	case models.ErrCodeNavigationTimeout:
		return "Timeout waiting for element: " + detail
	case models.ErrCodeInvalidCaseType:
		return se.Message
	default:
		return "Unexpected error: " + detail
	}
}
