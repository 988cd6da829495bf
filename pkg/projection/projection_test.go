package projection

import (
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
	return &document.MemoryDocument{
		UserID:   "u1",
		Category: category,
		Payload:  testSchema(t, category).DefaultPayload(),
	}
}

func TestBuild_BiometricsMeasurements(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)

	body := doc.Payload["body_composition"].(map[string]interface{})
	body["weight"].(map[string]interface{})["current"] = 75.5
	bp := doc.Payload["blood_pressure"].(map[string]interface{})
	bp["systolic"].(map[string]interface{})["current"] = 120.0
	bp["diastolic"].(map[string]interface{})["current"] = 80.0
	doc.Payload["resting_heart_rate"].(map[string]interface{})["current"] = 58.0

	view := Build(schema, doc)

	bodyView := view["body_composition"].(map[string]interface{})
	if bodyView["weight"] != "75.5 kg" {
		t.Errorf("weight = %v, want \"75.5 kg\"", bodyView["weight"])
	}
	if _, present := bodyView["bmi"]; present {
		t.Error("measurement without current value must be omitted")
	}
	if view["blood_pressure"] != "120/80 mmHg" {
		t.Errorf("blood_pressure = %v, want \"120/80 mmHg\"", view["blood_pressure"])
	}
	if view["resting_heart_rate"] != "58 bpm" {
		t.Errorf("resting_heart_rate = %v, want \"58 bpm\"", view["resting_heart_rate"])
	}
}

func TestBuild_BloodPressureIncomplete(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)
	doc.Payload["blood_pressure"].(map[string]interface{})["systolic"].(map[string]interface{})["current"] = 120.0

	view := Build(schema, doc)
	if _, present := view["blood_pressure"]; present {
		t.Error("blood pressure with one reading missing must be omitted")
	}
}

func TestBuild_Truncation(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)

	labs := make([]interface{}, 0, 8)
	for i := 0; i < 8; i++ {
		labs = append(labs, map[string]interface{}{"n": float64(i)})
	}
	doc.Payload["lab_results"] = labs

	view := Build(schema, doc)
	kept := view["lab_results"].([]interface{})
	if len(kept) != 5 {
		t.Fatalf("lab_results kept = %d, want 5", len(kept))
	}
	// The most recent (last appended) entries are kept.
	if kept[0].(map[string]interface{})["n"] != 3.0 {
		t.Errorf("first kept entry = %v, want n=3", kept[0])
	}
	if kept[4].(map[string]interface{})["n"] != 7.0 {
		t.Errorf("last kept entry = %v, want n=7", kept[4])
	}
}

func TestBuild_MedicalHistoryFiltersTemplates(t *testing.T) {
	schema := testSchema(t, template.CategoryMedicalHistory)
	doc := testDoc(t, template.CategoryMedicalHistory)

	doc.Payload["conditions"] = []interface{}{
		map[string]interface{}{"name": "example condition", "status": "template"},
		map[string]interface{}{"name": "asthma", "status": "active"},
	}

	view := Build(schema, doc)
	conditions := view["conditions"].([]interface{})
	if len(conditions) != 1 {
		t.Fatalf("conditions = %v, want 1 real entry", conditions)
	}
	if conditions[0].(map[string]interface{})["name"] != "asthma" {
		t.Errorf("kept condition = %v", conditions[0])
	}
}

func TestBuild_ProfileGoals(t *testing.T) {
	schema := testSchema(t, template.CategoryProfile)
	doc := testDoc(t, template.CategoryProfile)

	doc.Payload["name"] = "Ada"
	doc.Payload["goals"].(map[string]interface{})["fitness"] = []interface{}{
		map[string]interface{}{"description": "run a 10k", "target_date": "2025-06-01"},
		"strength train twice a week",
	}

	view := Build(schema, doc)
	if view["name"] != "Ada" {
		t.Errorf("name = %v", view["name"])
	}
	fitness := view["goals"].(map[string]interface{})["fitness"].([]interface{})
	if len(fitness) != 2 || fitness[0] != "run a 10k" || fitness[1] != "strength train twice a week" {
		t.Errorf("fitness goals = %v", fitness)
	}
}

func TestBuild_WorkoutCompaction(t *testing.T) {
	schema := testSchema(t, template.CategoryWorkout)
	doc := testDoc(t, template.CategoryWorkout)

	doc.Payload["recent_workouts"] = []interface{}{
		map[string]interface{}{
			"workout_type":         "running",
			"start_date":           "2025-03-01T07:15:00Z",
			"duration_seconds":     1980.0,
			"distance":             5.2,
			"distance_unit":        "km",
			"active_energy_burned": 340.0,
			"heart_rate_samples":   []interface{}{1.0, 2.0, 3.0},
		},
	}

	view := Build(schema, doc)
	workouts := view["recent_workouts"].([]interface{})
	if len(workouts) != 1 {
		t.Fatalf("recent_workouts = %v", workouts)
	}
	w := workouts[0].(map[string]interface{})
	if w["start_date"] != "2025-03-01" {
		t.Errorf("start_date = %v, want date part only", w["start_date"])
	}
	if w["duration_minutes"] != 33.0 {
		t.Errorf("duration_minutes = %v, want 33", w["duration_minutes"])
	}
	if w["calories"] != 340.0 {
		t.Errorf("calories = %v", w["calories"])
	}
	if _, present := w["heart_rate_samples"]; present {
		t.Error("compact workouts must drop raw sample series")
	}
}

func TestBuild_PureAndDeterministic(t *testing.T) {
	schema := testSchema(t, template.CategoryBiometrics)
	doc := testDoc(t, template.CategoryBiometrics)
	doc.Payload["body_composition"].(map[string]interface{})["weight"].(map[string]interface{})["current"] = 75.5
	doc.Payload["lab_results"] = []interface{}{map[string]interface{}{"test": "a1c"}}

	before := document.CloneValue(doc.Payload)
	first := Build(schema, doc)
	second := Build(schema, doc)

	// Building must not touch the document.
	if !equalValue(before, doc.Payload) {
		t.Error("Build mutated the document payload")
	}
	if !equalValue(map[string]interface{}(first), map[string]interface{}(second)) {
		t.Error("Build is not deterministic for an unchanged document")
	}

	// Mutating the view must not leak into the document.
	first["lab_results"].([]interface{})[0].(map[string]interface{})["test"] = "changed"
	if doc.Payload["lab_results"].([]interface{})[0].(map[string]interface{})["test"] != "a1c" {
		t.Error("view shares state with the document")
	}
}

func equalValue(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !equalValue(v, bv[k]) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
