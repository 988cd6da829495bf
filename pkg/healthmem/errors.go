package healthmem

import (
	"errors"
	"strings"

	"github.com/zestify/healthmem/pkg/merge"
	"github.com/zestify/healthmem/pkg/router"
	"github.com/zestify/healthmem/pkg/template"
)

// Error type constants for classification
const (
	ErrTypeSchemaViolation       = "schema_violation"
	ErrTypePathNotFound          = "path_not_found"
	ErrTypeTypeMismatch          = "type_mismatch"
	ErrTypeOperationNotSupported = "operation_not_supported"
	ErrTypeUnroutablePath        = "unroutable_path"
	ErrTypeUnknownCategory       = "unknown_category"
	ErrTypeDatabase              = "database"
	ErrTypeUnknown               = "unknown"
)

// ClassifyError inspects an error and returns its type classification.
// This enables grouping errors by category in metrics and traces.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, template.ErrSchemaViolation):
		return ErrTypeSchemaViolation
	case errors.Is(err, merge.ErrPathNotFound):
		return ErrTypePathNotFound
	case errors.Is(err, merge.ErrTypeMismatch):
		return ErrTypeTypeMismatch
	case errors.Is(err, merge.ErrOperationNotSupported):
		return ErrTypeOperationNotSupported
	case errors.Is(err, router.ErrUnroutablePath):
		return ErrTypeUnroutablePath
	case errors.Is(err, template.ErrUnknownCategory):
		return ErrTypeUnknownCategory
	}

	return classifyMessage(err.Error())
}

// classifyMessage classifies an error by its message text. Used for errors
// that crossed a serialization boundary and lost their sentinel identity.
func classifyMessage(msg string) string {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "schema violation"):
		return ErrTypeSchemaViolation
	case strings.Contains(lower, "path not found"):
		return ErrTypePathNotFound
	case strings.Contains(lower, "type mismatch"):
		return ErrTypeTypeMismatch
	case strings.Contains(lower, "operation not supported"):
		return ErrTypeOperationNotSupported
	case strings.Contains(lower, "unroutable path"):
		return ErrTypeUnroutablePath
	case strings.Contains(lower, "unknown category"):
		return ErrTypeUnknownCategory
	case strings.Contains(lower, "sql"),
		strings.Contains(lower, "database"),
		strings.Contains(lower, "constraint"):
		return ErrTypeDatabase
	}

	return ErrTypeUnknown
}
