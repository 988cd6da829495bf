package merge

import (
	"errors"
	"testing"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

func testSchema(t *testing.T, category template.Category) *template.SchemaDescriptor {
	t.Helper()
	reg, err := template.Load()
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	schema, err := reg.Resolve(category)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", category, err)
	}
	return schema
}

func testDoc(t *testing.T, category template.Category) *document.MemoryDocument {
	t.Helper()
	schema := testSchema(t, category)
	return &document.MemoryDocument{
		UserID:   "u1",
		Category: category,
		Payload:  schema.DefaultPayload(),
	}
}

func TestDeepMerge_EmptyPayloadIsNoop(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)
	doc.Payload["name"] = "Ada"

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}
	if merged.Payload["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", merged.Payload["name"])
	}
}

func TestDeepMerge_NestedKeywise(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)
	doc.Payload["demographics"].(map[string]interface{})["age"] = 30.0

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{
		"demographics": map[string]interface{}{"gender": "female"},
	})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}

	demo := merged.Payload["demographics"].(map[string]interface{})
	if demo["age"] != 30.0 {
		t.Errorf("sibling key lost: age = %v", demo["age"])
	}
	if demo["gender"] != "female" {
		t.Errorf("gender = %v, want female", demo["gender"])
	}
}

func TestDeepMerge_NullDeletesKey(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)
	doc.Payload["name"] = "Ada"

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{"name": nil})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}
	if _, exists := merged.Payload["name"]; exists {
		t.Error("null value must delete the key")
	}
}

func TestDeepMerge_ListsReplaceWholesale(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)
	doc.Payload["equipment_available"] = []interface{}{"dumbbells", "bands"}

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{
		"equipment_available": []interface{}{"barbell"},
	})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}

	list := merged.Payload["equipment_available"].([]interface{})
	if len(list) != 1 || list[0] != "barbell" {
		t.Errorf("list = %v, want [barbell]", list)
	}
}

func TestDeepMerge_UndeclaredKeyRejectsWholePayload(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)

	_, err := ApplyDeepMerge(schema, doc, map[string]interface{}{
		"name":      "Ada",
		"shoe_size": 38,
	})
	if !errors.Is(err, template.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}

	// All-or-nothing: the valid sibling key must not have been applied.
	if _, exists := doc.Payload["name"].(string); exists {
		t.Error("document mutated despite rejected payload")
	}
}

func TestDeepMerge_MeasurementCurrentWithoutHistoryAppend(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{
		"body_composition": map[string]interface{}{
			"weight": map[string]interface{}{"current": 75.5},
		},
	})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}

	weight := merged.Payload["body_composition"].(map[string]interface{})["weight"].(map[string]interface{})
	if weight["current"] != 75.5 {
		t.Errorf("current = %v, want 75.5", weight["current"])
	}
	if weight["unit"] != "kg" {
		t.Errorf("unit clobbered: %v", weight["unit"])
	}
	if history := weight["history"].([]interface{}); len(history) != 0 {
		t.Errorf("deep merge must not append history, got %v", history)
	}
}

func TestDeepMerge_HistoryKeyRejected(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)

	_, err := ApplyDeepMerge(schema, doc, map[string]interface{}{
		"body_composition": map[string]interface{}{
			"weight": map[string]interface{}{
				"history": []interface{}{},
			},
		},
	})
	if !errors.Is(err, template.ErrSchemaViolation) {
		t.Errorf("writing measurement history must be a schema violation, got %v", err)
	}
}

func TestDeepMerge_DoesNotMutateInputDocument(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)

	merged, err := ApplyDeepMerge(schema, doc, map[string]interface{}{"name": "Ada"})
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}
	if doc.Payload["name"] == "Ada" {
		t.Error("input document mutated")
	}
	if merged.Payload["name"] != "Ada" {
		t.Errorf("merged name = %v, want Ada", merged.Payload["name"])
	}
}

func TestDeepMerge_PatchAliasingIsolated(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)

	payload := map[string]interface{}{
		"equipment_available": []interface{}{"kettlebell"},
	}
	merged, err := ApplyDeepMerge(schema, doc, payload)
	if err != nil {
		t.Fatalf("ApplyDeepMerge: %v", err)
	}

	payload["equipment_available"].([]interface{})[0] = "changed"
	if merged.Payload["equipment_available"].([]interface{})[0] != "kettlebell" {
		t.Error("merged document shares state with the patch payload")
	}
}
