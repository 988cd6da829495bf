// Package merge applies structured updates to memory documents: whole-object
// deep merges (all-or-nothing) and path-targeted patch operations
// (partial-success). All entry points are pure functions over
// schema + document.
package merge

import (
	"fmt"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

// ApplyDeepMerge recursively merges payload into the document's payload.
// Mapping values merge key-wise, list values replace wholesale, scalars
// overwrite, and a nil value deletes the key (RFC 7386 semantics). The whole
// payload is validated against the schema before anything is applied: one
// undeclared key rejects the entire update with SchemaViolation and leaves
// the document unchanged.
//
// Writing a measurement's "current" or "unit" this way does not append
// history; any key addressing a measurement's "history" is a SchemaViolation,
// since history is only mutated through the history tracker.
func ApplyDeepMerge(schema *template.SchemaDescriptor, doc *document.MemoryDocument, payload map[string]interface{}) (*document.MemoryDocument, error) {
	if err := validatePayload(schema.Fields, payload, ""); err != nil {
		return nil, err
	}

	out := doc.Clone()
	mergeMaps(out.Payload, payload)
	return out, nil
}

// validatePayload walks the update payload against the declared field tree.
func validatePayload(fields map[string]*template.FieldSpec, payload map[string]interface{}, prefix string) error {
	for key, value := range payload {
		path := key
		if prefix != "" {
			path = prefix + "/" + key
		}

		spec, declared := fields[key]
		if !declared {
			return fmt.Errorf("%w: key %q is not declared", template.ErrSchemaViolation, path)
		}
		if value == nil {
			// RFC 7386 deletion; any declared key may be removed.
			continue
		}

		switch spec.Kind {
		case template.KindObject:
			if child, ok := value.(map[string]interface{}); ok {
				if err := validatePayload(spec.Fields, child, path); err != nil {
					return err
				}
			}
		case template.KindMeasurement:
			child, ok := value.(map[string]interface{})
			if !ok {
				return fmt.Errorf("%w: %q must be a measurement object", template.ErrSchemaViolation, path)
			}
			for mk := range child {
				switch mk {
				case "current", "unit":
				case "history":
					return fmt.Errorf("%w: %q: measurement history is append-only", template.ErrSchemaViolation, path)
				default:
					return fmt.Errorf("%w: key %q is not declared", template.ErrSchemaViolation, path+"/"+mk)
				}
			}
		case template.KindList, template.KindScalar:
			// List contents and scalar values are unconstrained here; the
			// deep merge contract only rejects undeclared keys.
		}
	}
	return nil
}

// mergeMaps merges patch into target in place. Callers pass a clone of the
// live payload; the patch itself is cloned on write so later caller-side
// mutation of the patch cannot leak into the document.
func mergeMaps(target, patch map[string]interface{}) {
	for key, value := range patch {
		if value == nil {
			delete(target, key)
			continue
		}
		if patchChild, ok := value.(map[string]interface{}); ok {
			if targetChild, ok := target[key].(map[string]interface{}); ok {
				mergeMaps(targetChild, patchChild)
				continue
			}
		}
		target[key] = document.CloneValue(value)
	}
}
