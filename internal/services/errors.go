package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPlatform      = errors.New("ad platform error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Hint maps an error to the operator next step used as the error_hint log
// field and in failure notifications.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "fix the configuration file and rerun"
	case errors.Is(err, ErrValidation):
		return "inspect the change request and reject or correct it"
	case errors.Is(err, ErrNotFound):
		return "refresh the registry; the asset or ad may have been removed"
	case errors.Is(err, ErrTimeout):
		return "the run budget elapsed; remaining changes run next time"
	case errors.Is(err, ErrStorage):
		return "check the data directory and database file permissions"
	case errors.Is(err, ErrPlatform), errors.Is(err, ErrTransient):
		return "check Google Ads API status and credentials; the next run retries"
	default:
		return "check logs for details"
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
