package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for stage error classification. Stages wrap every failure
// with exactly one of these so the dispatcher can pick a retry policy from
// errors.Is alone, never from message content.
var (
	ErrValidation = errors.New("validation error")
	ErrTransient  = errors.New("transient failure")
	ErrResource   = errors.New("resource failure")
	ErrFatal      = errors.New("fatal error")
)

// Kind names an error classification for logs and policy lookups.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindResource   Kind = "resource"
	KindFatal      Kind = "fatal"
	KindUnknown    Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; a nil marker defaults to transient.
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

// Classify maps a stage error to its Kind. Unclassified errors are treated as
// transient so a stray network failure is not promoted to a terminal one.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrResource):
		return KindResource
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindTransient
	}
}

// Retryable reports whether the dispatcher may attempt the stage again at all.
// The attempt ceiling for retryable kinds is policy owned by the dispatcher.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindValidation, KindFatal:
		return false
	default:
		return true
	}
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
