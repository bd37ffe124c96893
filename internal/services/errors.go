package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient      = errors.New("transient failure")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrConfiguration  = errors.New("configuration error")
	ErrInfrastructure = errors.New("infrastructure error")
)

// Kind is the classification the stage runner uses to decide between retrying,
// recording a terminal failure, or aborting the sweep.
type Kind string

const (
	KindTransient      Kind = "transient"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindConfiguration  Kind = "configuration"
	KindInfrastructure Kind = "infrastructure"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its Kind. Unmarked errors from adapters are
// treated as transient so that flaky collaborators get the retry budget.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInfrastructure):
		return KindInfrastructure
	default:
		return KindTransient
	}
}

// Retryable reports whether the stage runner should spend another attempt on
// the error. Validation and configuration failures reproduce with identical
// input, so retrying them is wasted quota.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
