package healthmem

import (
	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/merge"
	"github.com/zestify/healthmem/pkg/projection"
	"github.com/zestify/healthmem/pkg/router"
	"github.com/zestify/healthmem/pkg/template"
)

// Type re-exports for caller convenience

// Category is re-exported from template package
type Category = template.Category

// Category constants re-exported from template package
const (
	CategoryProfile        = template.CategoryProfile
	CategoryBiometrics     = template.CategoryBiometrics
	CategoryWorkout        = template.CategoryWorkout
	CategorySleep          = template.CategorySleep
	CategoryMedicalHistory = template.CategoryMedicalHistory
	CategoryGoals          = template.CategoryGoals
	CategoryActivity       = template.CategoryActivity
	CategoryChatHistory    = template.CategoryChatHistory
)

// SchemaDescriptor is re-exported from template package
type SchemaDescriptor = template.SchemaDescriptor

// MemoryDocument is re-exported from document package
type MemoryDocument = document.MemoryDocument

// Measurement is re-exported from document package
type Measurement = document.Measurement

// HistoryEntry is re-exported from document package
type HistoryEntry = document.HistoryEntry

// PatchOperation is re-exported from merge package
type PatchOperation = merge.PatchOperation

// OperationResult is re-exported from merge package
type OperationResult = merge.OperationResult

// Patch op constants re-exported from merge package
const (
	OpAdd     = merge.OpAdd
	OpReplace = merge.OpReplace
	OpRemove  = merge.OpRemove
)

// Rejection is re-exported from router package
type Rejection = router.Rejection

// View is re-exported from projection package
type View = projection.View

// Sentinel errors re-exported for callers that switch on failure kind
var (
	ErrSchemaViolation       = template.ErrSchemaViolation
	ErrUnknownCategory       = template.ErrUnknownCategory
	ErrPathNotFound          = merge.ErrPathNotFound
	ErrTypeMismatch          = merge.ErrTypeMismatch
	ErrOperationNotSupported = merge.ErrOperationNotSupported
	ErrUnroutablePath        = router.ErrUnroutablePath
)
