// Package healthmem provides a versioned per-user memory document engine
// with schema-validated patch and merge updates.
package healthmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/merge"
	"github.com/zestify/healthmem/pkg/metrics"
	"github.com/zestify/healthmem/pkg/projection"
	"github.com/zestify/healthmem/pkg/router"
	"github.com/zestify/healthmem/pkg/store"
	"github.com/zestify/healthmem/pkg/template"
	"github.com/zestify/healthmem/pkg/trace"
)

// Operation names used in metrics and traces.
const (
	OpApplyPatch        = "apply_patch"
	OpDeepMerge         = "deep_merge"
	OpRecordMeasurement = "record_measurement"
	OpGetProjection     = "get_projection"
)

// Config holds configuration for the memory engine
type Config struct {
	// DBPath is the SQLite database path. Ignored when RawStore is set.
	// Empty DBPath with no RawStore selects the in-memory store.
	DBPath string

	// RawStore overrides the default storage backend
	RawStore store.RawStore

	// Metrics overrides the default collector (no-op when nil)
	Metrics metrics.Collector

	// TraceExporter overrides the default exporter (no-op when nil)
	TraceExporter trace.Exporter

	// Clock overrides time.Now, used by tests
	Clock store.Clock
}

// Engine is the main entry point for the memory system
type Engine struct {
	registry *template.Registry
	raw      store.RawStore
	docs     *store.DocumentStore
	metrics  metrics.Collector
	exporter trace.Exporter

	// mu guards locks; each entry serializes writes to one (user, category) key
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// PatchOutcome reports the result of applying one category's share of a patch.
type PatchOutcome struct {
	// Document is the saved document after applying the operations
	Document *document.MemoryDocument `json:"document"`

	// Results holds one entry per routed operation, Index referring to the
	// operation's position in the original request
	Results []merge.OperationResult `json:"results"`
}

// PatchReport is the full result of an ApplyPatch call.
type PatchReport struct {
	// Outcomes maps each addressed category to its patch outcome
	Outcomes map[template.Category]*PatchOutcome `json:"outcomes"`

	// Rejections lists operations that could not be routed to any category
	Rejections []router.Rejection `json:"rejections,omitempty"`
}

// New creates a new memory engine
func New(cfg Config) (*Engine, error) {
	registry, err := template.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load category templates: %w", err)
	}

	raw := cfg.RawStore
	if raw == nil {
		if cfg.DBPath != "" {
			raw, err = store.NewSQLiteRawStore(cfg.DBPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open document store: %w", err)
			}
		} else {
			raw = store.NewMemoryRawStore()
		}
	}

	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	exporter := cfg.TraceExporter
	if exporter == nil {
		exporter = &trace.NoopExporter{}
	}

	return &Engine{
		registry: registry,
		raw:      raw,
		docs:     store.NewDocumentStore(registry, raw, cfg.Clock),
		metrics:  collector,
		exporter: exporter,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the storage backend and flushes the trace exporter.
func (e *Engine) Close() error {
	if err := e.exporter.Close(); err != nil {
		e.raw.Close()
		return fmt.Errorf("failed to close trace exporter: %w", err)
	}
	return e.raw.Close()
}

// Registry returns the immutable template registry.
func (e *Engine) Registry() *template.Registry {
	return e.registry
}

// Categories lists every known category in sorted order.
func (e *Engine) Categories() []template.Category {
	return e.registry.Categories()
}

// ResolveSchema resolves a category name or alias to its schema.
func (e *Engine) ResolveSchema(name string) (*template.SchemaDescriptor, error) {
	if category, ok := e.registry.CategoryForPrefix(name); ok {
		return e.registry.Resolve(category)
	}
	return nil, fmt.Errorf("%w: %q", template.ErrUnknownCategory, name)
}

// GetDocument loads the stored document for one user and category, creating
// the template-default document in memory when none is stored yet.
func (e *Engine) GetDocument(ctx context.Context, userID, category string) (*document.MemoryDocument, error) {
	schema, err := e.ResolveSchema(category)
	if err != nil {
		return nil, err
	}
	return e.docs.LoadOrCreate(ctx, userID, schema.Category)
}

// ApplyPatch routes the operations to their categories and applies each
// category's share with partial-success semantics: a failed operation is
// reported in its outcome's Results and the remaining operations still apply.
// Operations addressing no known category are returned as Rejections.
func (e *Engine) ApplyPatch(ctx context.Context, userID string, ops []merge.PatchOperation) (*PatchReport, error) {
	start := time.Now()
	tr := newTrace()

	routeTimer := newSpanTimer("route", tr, true)
	routed := router.Route(e.registry, ops)
	routeTimer.finish(true, nil, map[string]int64{
		"opCount":     int64(len(ops)),
		"rejectedOps": int64(len(routed.Rejections)),
	})

	report := &PatchReport{
		Outcomes:   make(map[template.Category]*PatchOutcome, len(routed.ByCategory)),
		Rejections: routed.Rejections,
	}

	// Deterministic category order keeps traces and lock acquisition stable.
	categories := make([]template.Category, 0, len(routed.ByCategory))
	for category := range routed.ByCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, category := range categories {
		outcome, err := e.patchCategory(ctx, tr, userID, category, routed.ByCategory[category])
		if err != nil {
			e.finishOperation(ctx, OpApplyPatch, userID, start, tr, err)
			return nil, err
		}
		report.Outcomes[category] = outcome
	}

	e.finishOperation(ctx, OpApplyPatch, userID, start, tr, nil)
	return report, nil
}

// patchCategory applies one category's routed operations under that
// category's write lock.
func (e *Engine) patchCategory(ctx context.Context, tr *OperationTrace, userID string, category template.Category, routedOps []router.RoutedOp) (*PatchOutcome, error) {
	schema, err := e.registry.Resolve(category)
	if err != nil {
		return nil, err
	}

	unlock := e.lockKey(userID, category)
	defer unlock()

	loadTimer := newSpanTimer("load", tr, true)
	doc, err := e.docs.LoadOrCreate(ctx, userID, category)
	loadTimer.finish(err == nil, err, nil)
	if err != nil {
		return nil, err
	}

	ops := make([]merge.PatchOperation, len(routedOps))
	for i, r := range routedOps {
		ops[i] = r.Op
	}

	applyTimer := newSpanTimer("apply", tr, true)
	patched, results := merge.ApplyPatch(schema, doc, ops)
	var failed int64
	for i := range results {
		// Report results against the caller's original operation indices.
		results[i].Index = routedOps[i].Index
		if !results[i].OK() {
			failed++
		}
	}
	applyTimer.finish(failed == 0, nil, map[string]int64{
		"opCount":   int64(len(ops)),
		"failedOps": failed,
	})

	if failed == int64(len(ops)) {
		// A batch with no successful operation changes nothing, so it is
		// not persisted and last_updated is not stamped.
		return &PatchOutcome{Document: doc, Results: results}, nil
	}

	saveTimer := newSpanTimer("save", tr, true)
	saved, err := e.docs.Save(ctx, patched)
	saveTimer.finish(err == nil, err, nil)
	if err != nil {
		return nil, err
	}

	return &PatchOutcome{Document: saved, Results: results}, nil
}

// ApplyDeepMerge validates the whole payload against the category schema and
// merges it into the stored document. All-or-nothing: a single violation
// leaves the document untouched.
func (e *Engine) ApplyDeepMerge(ctx context.Context, userID, category string, payload map[string]interface{}) (*document.MemoryDocument, error) {
	start := time.Now()
	tr := newTrace()

	schema, err := e.ResolveSchema(category)
	if err != nil {
		e.finishOperation(ctx, OpDeepMerge, userID, start, tr, err)
		return nil, err
	}

	unlock := e.lockKey(userID, schema.Category)
	defer unlock()

	loadTimer := newSpanTimer("load", tr, true)
	doc, err := e.docs.LoadOrCreate(ctx, userID, schema.Category)
	loadTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpDeepMerge, userID, start, tr, err)
		return nil, err
	}

	mergeTimer := newSpanTimer("apply", tr, true)
	merged, err := merge.ApplyDeepMerge(schema, doc, payload)
	mergeTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpDeepMerge, userID, start, tr, err)
		return nil, err
	}

	saveTimer := newSpanTimer("save", tr, true)
	saved, err := e.docs.Save(ctx, merged)
	saveTimer.finish(err == nil, err, nil)
	e.finishOperation(ctx, OpDeepMerge, userID, start, tr, err)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// RecordMeasurement appends one reading to a measurement's history and makes
// it the current value. History is append-only and keeps arrival order; the
// path must address a measurement field declared by the category template.
func (e *Engine) RecordMeasurement(ctx context.Context, userID, category, path string, value interface{}, timestamp time.Time, source, notes string) (*document.MemoryDocument, error) {
	start := time.Now()
	tr := newTrace()

	schema, err := e.ResolveSchema(category)
	if err != nil {
		e.finishOperation(ctx, OpRecordMeasurement, userID, start, tr, err)
		return nil, err
	}

	segments := merge.ParsePath(path)
	validateTimer := newSpanTimer("validate", tr, true)
	info, err := schema.ResolvePath(segments)
	if err == nil && info.Kind != template.KindMeasurement {
		err = fmt.Errorf("%w: %q does not address a measurement", template.ErrSchemaViolation, path)
	}
	validateTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpRecordMeasurement, userID, start, tr, err)
		return nil, err
	}

	unlock := e.lockKey(userID, schema.Category)
	defer unlock()

	loadTimer := newSpanTimer("load", tr, true)
	doc, err := e.docs.LoadOrCreate(ctx, userID, schema.Category)
	loadTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpRecordMeasurement, userID, start, tr, err)
		return nil, err
	}

	applyTimer := newSpanTimer("apply", tr, true)
	updated := doc.Clone()
	err = appendReading(schema, updated.Payload, segments, info.Spec, value, timestamp, source, notes)
	applyTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpRecordMeasurement, userID, start, tr, err)
		return nil, err
	}

	saveTimer := newSpanTimer("save", tr, true)
	saved, err := e.docs.Save(ctx, updated)
	saveTimer.finish(err == nil, err, nil)
	e.finishOperation(ctx, OpRecordMeasurement, userID, start, tr, err)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetProjection loads the document and builds its compact view.
func (e *Engine) GetProjection(ctx context.Context, userID, category string) (projection.View, error) {
	start := time.Now()
	tr := newTrace()

	schema, err := e.ResolveSchema(category)
	if err != nil {
		e.finishOperation(ctx, OpGetProjection, userID, start, tr, err)
		return nil, err
	}

	loadTimer := newSpanTimer("load", tr, true)
	doc, err := e.docs.LoadOrCreate(ctx, userID, schema.Category)
	loadTimer.finish(err == nil, err, nil)
	if err != nil {
		e.finishOperation(ctx, OpGetProjection, userID, start, tr, err)
		return nil, err
	}

	projectTimer := newSpanTimer("project", tr, true)
	view := projection.Build(schema, doc)
	projectTimer.finish(true, nil, nil)

	e.finishOperation(ctx, OpGetProjection, userID, start, tr, nil)
	return view, nil
}

// appendReading walks the payload to the measurement at segments and appends
// the new reading. Intermediate objects declared by the schema are
// materialized on first use.
func appendReading(schema *template.SchemaDescriptor, payload map[string]interface{}, segments []string, spec *template.FieldSpec, value interface{}, timestamp time.Time, source, notes string) error {
	cur := payload
	fields := schema.Fields
	for _, seg := range segments[:len(segments)-1] {
		childSpec, ok := fields[seg]
		if !ok || childSpec.Kind != template.KindObject {
			return fmt.Errorf("%w: %q is not an object", template.ErrSchemaViolation, seg)
		}
		child, ok := cur[seg].(map[string]interface{})
		if !ok {
			child = childSpec.Instantiate().(map[string]interface{})
			cur[seg] = child
		}
		cur = child
		fields = childSpec.Fields
	}

	leaf := segments[len(segments)-1]
	raw, ok := cur[leaf].(map[string]interface{})
	if !ok {
		raw = spec.Instantiate().(map[string]interface{})
	}
	m := document.MeasurementFromMap(raw)
	if m.Unit == "" {
		m.Unit = spec.Unit
	}
	m = document.AddEntry(m, value, timestamp, source, notes)
	cur[leaf] = m.ToMap()
	return nil
}

// lockKey serializes writers for one (user, category) document.
func (e *Engine) lockKey(userID string, category template.Category) func() {
	key := userID + "\x00" + string(category)
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// finishOperation records metrics and exports the operation trace.
func (e *Engine) finishOperation(ctx context.Context, operation, userID string, start time.Time, tr *OperationTrace, err error) {
	durationMs := time.Since(start).Milliseconds()

	status := "success"
	if err != nil {
		status = "error"
		e.metrics.RecordError(ctx, operation, ClassifyError(err))
	}
	e.metrics.RecordOperation(ctx, operation, status, durationMs)
	for _, span := range tr.Spans {
		e.metrics.RecordStage(ctx, operation, span.Name, span.DurationMs)
	}
	e.updateDocumentGauge(ctx)

	record := &trace.TraceRecord{
		Timestamp:   start.UTC(),
		OperationID: newOperationID(),
		Operation:   operation,
		DurationMs:  durationMs,
		Status:      status,
		Spans:       exportSpans(tr.Spans),
		IDs:         map[string]interface{}{"userId": userID},
	}
	if err != nil {
		record.ErrorType = ClassifyError(err)
	}
	// Trace export failures never fail the operation.
	_ = e.exporter.Export(ctx, record)
}

func (e *Engine) updateDocumentGauge(ctx context.Context) {
	if counter, ok := e.raw.(interface {
		DocumentCount(ctx context.Context) (int64, error)
	}); ok {
		if count, err := counter.DocumentCount(ctx); err == nil {
			e.metrics.SetDocumentCount(ctx, count)
		}
	}
}

func exportSpans(spans []Span) []trace.SpanRecord {
	out := make([]trace.SpanRecord, len(spans))
	for i, s := range spans {
		out[i] = trace.SpanRecord{
			Name:       s.Name,
			DurationMs: s.DurationMs,
			OK:         s.OK,
			Counters:   s.Counters,
		}
		if !s.OK && s.Error != "" {
			out[i].ErrorType = classifyMessage(s.Error)
		}
	}
	return out
}
