package merge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

// Op is a patch operation kind, modeled on RFC 6902.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Sentinel errors for patch application. SchemaViolation and UnknownCategory
// live in pkg/template; UnroutablePath in pkg/router.
var (
	ErrPathNotFound          = errors.New("path not found")
	ErrTypeMismatch          = errors.New("type mismatch")
	ErrOperationNotSupported = errors.New("operation not supported")
)

// PatchOperation is a single path-targeted instruction. Paths are accepted in
// slash form ("/body_composition/weight/current") or the conversation layer's
// dot form ("body_composition.weight.current"); a final "-" segment appends
// to a list.
type PatchOperation struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// OperationResult reports the outcome of one patch operation. Err is nil on
// success. One operation's failure never blocks subsequent operations.
type OperationResult struct {
	Index int    `json:"index"`
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Err   error  `json:"-"`
	// Error holds Err's message for serialized results.
	Error string `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r OperationResult) OK() bool { return r.Err == nil }

// ParsePath splits a patch path into segments. A leading "/" is stripped;
// paths without "/" are split on "." for compatibility with dot-notation
// producers.
func ParsePath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	if strings.Contains(path, "/") {
		return strings.Split(path, "/")
	}
	return strings.Split(path, ".")
}

// ApplyPatch applies a batch of operations to a document under the given
// schema. Application is partial-success: each operation is validated and
// applied independently, in order, and its outcome reported in the results.
// The input document is never mutated; the returned document reflects all
// operations that succeeded.
func ApplyPatch(schema *template.SchemaDescriptor, doc *document.MemoryDocument, ops []PatchOperation) (*document.MemoryDocument, []OperationResult) {
	out := doc.Clone()
	results := make([]OperationResult, len(ops))

	for i, op := range ops {
		err := applyOne(schema, out.Payload, op)
		results[i] = OperationResult{Index: i, Op: op.Op, Path: op.Path, Err: err}
		if err != nil {
			results[i].Error = err.Error()
		}
	}

	return out, results
}

func applyOne(schema *template.SchemaDescriptor, payload map[string]interface{}, op PatchOperation) error {
	switch op.Op {
	case OpAdd, OpReplace, OpRemove:
	default:
		return fmt.Errorf("%w: %q", ErrOperationNotSupported, op.Op)
	}

	segs := ParsePath(op.Path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", template.ErrSchemaViolation)
	}

	info, err := schema.ResolvePath(segs)
	if err != nil {
		return err
	}
	if info.ThroughHistory {
		return fmt.Errorf("%w: measurement history is append-only", template.ErrSchemaViolation)
	}

	_, err = applySegments(payload, schema.Fields, nil, segs, op, info)
	return err
}

// applySegments walks the payload along segs and applies op at the leaf.
// fields carries the declared children while the walk is inside schema
// territory; it is nil in the free zone below list elements. The possibly
// reallocated container is returned so list appends propagate upward.
func applySegments(cur interface{}, fields map[string]*template.FieldSpec, spec *template.FieldSpec, segs []string, op PatchOperation, info *template.PathInfo) (interface{}, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch c := cur.(type) {
	case map[string]interface{}:
		if last {
			return c, applyMapLeaf(c, seg, op, info)
		}

		var childSpec *template.FieldSpec
		if fields != nil {
			childSpec = fields[seg]
		} else if spec != nil && spec.Kind == template.KindMeasurement {
			childSpec = measurementChild(seg)
		}

		child, exists := c[seg]
		if !exists || child == nil {
			// Schema-declared containers are materialized on demand;
			// anything else is a dead end.
			if childSpec == nil || childSpec.Kind == template.KindScalar {
				return nil, fmt.Errorf("%w: %q", ErrPathNotFound, seg)
			}
			child = childSpec.Instantiate()
			c[seg] = child
		}

		var childFields map[string]*template.FieldSpec
		if childSpec != nil && childSpec.Kind == template.KindObject {
			childFields = childSpec.Fields
		}

		updated, err := applySegments(child, childFields, childSpec, segs[1:], op, info)
		if err != nil {
			return nil, err
		}
		c[seg] = updated
		return c, nil

	case []interface{}:
		if last {
			return applyListLeaf(c, seg, op)
		}
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: list index %q", ErrPathNotFound, seg)
		}
		updated, err := applySegments(c[idx], nil, nil, segs[1:], op, info)
		if err != nil {
			return nil, err
		}
		c[idx] = updated
		return c, nil

	default:
		return nil, fmt.Errorf("%w: %q is not a container", ErrPathNotFound, seg)
	}
}

func applyMapLeaf(c map[string]interface{}, seg string, op PatchOperation, info *template.PathInfo) error {
	switch op.Op {
	case OpAdd, OpReplace:
		if err := checkValueKind(info, op.Value); err != nil {
			return err
		}
		if err := checkMapValue(seg, op.Value, info); err != nil {
			return err
		}
		if op.Op == OpReplace && info.Free {
			// In the free zone below list elements the schema cannot vouch
			// for the leaf, so replace requires it to exist.
			if _, exists := c[seg]; !exists {
				return fmt.Errorf("%w: %q", ErrPathNotFound, seg)
			}
		}
		c[seg] = document.CloneValue(op.Value)
		return nil
	case OpRemove:
		if _, exists := c[seg]; !exists {
			return fmt.Errorf("%w: %q", ErrPathNotFound, seg)
		}
		delete(c, seg)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrOperationNotSupported, op.Op)
}

func applyListLeaf(c []interface{}, seg string, op PatchOperation) (interface{}, error) {
	if seg == "-" {
		if op.Op != OpAdd {
			return nil, fmt.Errorf("%w: %q addresses no element", ErrPathNotFound, seg)
		}
		return append(c, document.CloneValue(op.Value)), nil
	}

	idx, err := strconv.Atoi(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: list index %q", ErrPathNotFound, seg)
	}

	switch op.Op {
	case OpAdd:
		// RFC 6902: add at an index inserts before that position.
		if idx < 0 || idx > len(c) {
			return nil, fmt.Errorf("%w: list index %d out of range", ErrPathNotFound, idx)
		}
		out := make([]interface{}, 0, len(c)+1)
		out = append(out, c[:idx]...)
		out = append(out, document.CloneValue(op.Value))
		out = append(out, c[idx:]...)
		return out, nil
	case OpReplace:
		if idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: list index %d out of range", ErrPathNotFound, idx)
		}
		c[idx] = document.CloneValue(op.Value)
		return c, nil
	case OpRemove:
		if idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: list index %d out of range", ErrPathNotFound, idx)
		}
		return append(c[:idx:idx], c[idx+1:]...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrOperationNotSupported, op.Op)
}

// checkValueKind rejects values whose shape conflicts with the declared kind
// at the addressed location. Locations inside list elements are unconstrained.
func checkValueKind(info *template.PathInfo, value interface{}) error {
	if info.Free || info.Kind == "" {
		return nil
	}
	switch info.Kind {
	case template.KindScalar:
		switch value.(type) {
		case map[string]interface{}:
			return fmt.Errorf("%w: object written where scalar declared", ErrTypeMismatch)
		case []interface{}:
			return fmt.Errorf("%w: list written where scalar declared", ErrTypeMismatch)
		}
	case template.KindList:
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("%w: %T written where list declared", ErrTypeMismatch, value)
		}
	case template.KindObject, template.KindMeasurement:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("%w: %T written where object declared", ErrTypeMismatch, value)
		}
	}
	return nil
}

// checkMapValue validates a map value written at a schema-declared object or
// measurement node against the declared subtree. The declared keys constrain
// the value's keys just as they do for a deep merge payload, so a patch op
// cannot introduce undeclared keys or write measurement history.
func checkMapValue(seg string, value interface{}, info *template.PathInfo) error {
	if info.Free || info.Spec == nil {
		return nil
	}
	switch info.Kind {
	case template.KindObject, template.KindMeasurement:
		return validatePayload(
			map[string]*template.FieldSpec{seg: info.Spec},
			map[string]interface{}{seg: value},
			"",
		)
	}
	return nil
}

// measurementChild synthesizes the spec for a measurement's declared
// children. History never reaches here: paths through it are rejected before
// application.
func measurementChild(seg string) *template.FieldSpec {
	switch seg {
	case "current", "unit":
		return &template.FieldSpec{Kind: template.KindScalar}
	case "history":
		return &template.FieldSpec{Kind: template.KindList}
	}
	return nil
}
