// Package projection renders memory documents into compact, display- and
// LLM-ready views. Building a view never mutates the source document, and an
// unchanged document always projects to the same view.
package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

// View is a compact rendering of one document's payload.
type View map[string]interface{}

// Build projects a document per its category's rules: measurements collapse
// to "<current> <unit>" strings, composite readings are joined (blood
// pressure as "systolic/diastolic mmHg"), and list fields are truncated to
// the most recent N entries declared by the category template.
func Build(schema *template.SchemaDescriptor, doc *document.MemoryDocument) View {
	switch doc.Category {
	case template.CategoryProfile:
		return buildProfile(doc.Payload)
	case template.CategoryBiometrics:
		return buildBiometrics(schema, doc.Payload)
	case template.CategoryWorkout:
		return buildWorkout(schema, doc.Payload)
	case template.CategoryMedicalHistory:
		return buildMedicalHistory(schema, doc.Payload)
	case template.CategoryGoals:
		return buildGoals(doc.Payload)
	default:
		return buildGeneric(schema.Fields, schema.Truncate, doc.Payload)
	}
}

// buildGeneric walks the schema: measurements format, lists truncate,
// objects recurse, scalars pass through when set.
func buildGeneric(fields map[string]*template.FieldSpec, truncate map[string]int, payload map[string]interface{}) View {
	out := View{}
	for name, spec := range fields {
		value, ok := payload[name]
		if !ok || value == nil {
			continue
		}
		switch spec.Kind {
		case template.KindMeasurement:
			if formatted, ok := formatMeasurement(value); ok {
				out[name] = formatted
			}
		case template.KindList:
			list, ok := value.([]interface{})
			if !ok || len(list) == 0 {
				continue
			}
			out[name] = lastN(list, truncate[name])
		case template.KindObject:
			child, ok := value.(map[string]interface{})
			if !ok {
				continue
			}
			if view := buildGeneric(spec.Fields, nil, child); len(view) > 0 {
				out[name] = map[string]interface{}(view)
			}
		default:
			out[name] = document.CloneValue(value)
		}
	}
	return out
}

func buildProfile(payload map[string]interface{}) View {
	out := View{}
	for _, key := range []string{"name", "fitness_level"} {
		if v, ok := payload[key]; ok && v != nil {
			out[key] = v
		}
	}

	if demo, ok := payload["demographics"].(map[string]interface{}); ok {
		compact := map[string]interface{}{}
		for _, key := range []string{"age", "gender", "height", "weight"} {
			if v, ok := demo[key]; ok && v != nil {
				compact[key] = v
			}
		}
		if len(compact) > 0 {
			out["demographics"] = compact
		}
	}

	if goals, ok := payload["goals"].(map[string]interface{}); ok {
		compact := map[string]interface{}{}
		for group, v := range goals {
			list, ok := v.([]interface{})
			if !ok || len(list) == 0 {
				continue
			}
			compact[group] = descriptions(list)
		}
		if len(compact) > 0 {
			out["goals"] = compact
		}
	}

	return out
}

func buildBiometrics(schema *template.SchemaDescriptor, payload map[string]interface{}) View {
	out := View{}

	if body, ok := payload["body_composition"].(map[string]interface{}); ok {
		compact := map[string]interface{}{}
		for _, key := range []string{"weight", "bmi", "body_fat_percentage"} {
			if formatted, ok := formatMeasurement(body[key]); ok {
				compact[key] = formatted
			}
		}
		if len(compact) > 0 {
			out["body_composition"] = compact
		}
	}

	if bp, ok := payload["blood_pressure"].(map[string]interface{}); ok {
		if formatted, ok := formatBloodPressure(bp); ok {
			out["blood_pressure"] = formatted
		}
	}

	if formatted, ok := formatMeasurement(payload["resting_heart_rate"]); ok {
		out["resting_heart_rate"] = formatted
	}

	if labs, ok := payload["lab_results"].([]interface{}); ok && len(labs) > 0 {
		out["lab_results"] = lastN(labs, schema.Truncate["lab_results"])
	}

	return out
}

func buildWorkout(schema *template.SchemaDescriptor, payload map[string]interface{}) View {
	out := View{}

	if recent, ok := payload["recent_workouts"].([]interface{}); ok && len(recent) > 0 {
		kept := lastN(recent, schema.Truncate["recent_workouts"])
		compact := make([]interface{}, 0, len(kept))
		for _, w := range kept {
			workout, ok := w.(map[string]interface{})
			if !ok {
				continue
			}
			compact = append(compact, compactWorkout(workout))
		}
		out["recent_workouts"] = compact
	}

	if patterns, ok := payload["workout_patterns"].(map[string]interface{}); ok {
		out["workout_patterns"] = document.CloneValue(patterns)
	}

	if goals, ok := payload["workout_goals"].(map[string]interface{}); ok {
		compact := map[string]interface{}{}
		for _, group := range []string{"current_goals", "completed_goals"} {
			if list, ok := goals[group].([]interface{}); ok && len(list) > 0 {
				compact[group] = descriptions(list)
			}
		}
		if len(compact) > 0 {
			out["workout_goals"] = compact
		}
	}

	return out
}

// compactWorkout keeps the fields the coach needs: type, day, duration in
// minutes, distance, calories.
func compactWorkout(w map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	if v, ok := w["workout_type"]; ok && v != nil {
		out["workout_type"] = v
	}
	if v, ok := w["start_date"].(string); ok {
		// Keep the date part only.
		if idx := strings.IndexByte(v, 'T'); idx > 0 {
			v = v[:idx]
		}
		out["start_date"] = v
	}
	if seconds, ok := numeric(w["duration_seconds"]); ok {
		out["duration_minutes"] = roundTenth(seconds / 60)
	} else if v, ok := w["duration_minutes"]; ok && v != nil {
		out["duration_minutes"] = v
	}
	if v, ok := w["distance"]; ok && v != nil {
		out["distance"] = v
		if unit, ok := w["distance_unit"]; ok && unit != nil {
			out["distance_unit"] = unit
		}
	}
	if v, ok := w["active_energy_burned"]; ok && v != nil {
		out["calories"] = v
	} else if v, ok := w["calories"]; ok && v != nil {
		out["calories"] = v
	}
	return out
}

func buildMedicalHistory(schema *template.SchemaDescriptor, payload map[string]interface{}) View {
	out := View{}

	if conditions, ok := payload["conditions"].([]interface{}); ok {
		kept := make([]interface{}, 0, len(conditions))
		for _, c := range conditions {
			condition, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			// Placeholder entries seeded for LLM reference are not real data.
			if status, ok := condition["status"].(string); ok && status == "template" {
				continue
			}
			kept = append(kept, document.CloneValue(condition))
		}
		if len(kept) > 0 {
			out["conditions"] = kept
		}
	}

	for _, key := range []string{"medications", "allergies"} {
		if list, ok := payload[key].([]interface{}); ok && len(list) > 0 {
			out[key] = lastN(list, 0)
		}
	}

	if visits, ok := payload["visits"].([]interface{}); ok && len(visits) > 0 {
		out["visits"] = lastN(visits, schema.Truncate["visits"])
	}

	return out
}

func buildGoals(payload map[string]interface{}) View {
	out := View{}
	for _, group := range []string{"current_goals", "completed_goals"} {
		if list, ok := payload[group].([]interface{}); ok && len(list) > 0 {
			out[group] = descriptions(list)
		}
	}
	return out
}

// descriptions extracts goal description strings, skipping entries without
// one. Plain string entries pass through.
func descriptions(list []interface{}) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]interface{}:
			if d, ok := v["description"].(string); ok && d != "" {
				out = append(out, d)
			} else if d, ok := v["goal"].(string); ok && d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

// lastN returns a copy of the most recent n entries (lists are
// append-ordered). n <= 0 keeps everything.
func lastN(list []interface{}, n int) []interface{} {
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	return document.CloneValue(list).([]interface{})
}

// formatMeasurement renders a measurement as "<current> <unit>"; ok is false
// when the value is not a measurement or has no current reading.
func formatMeasurement(v interface{}) (string, bool) {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	current, ok := raw["current"]
	if !ok || current == nil {
		return "", false
	}
	formatted := formatNumber(current)
	if unit, ok := raw["unit"].(string); ok && unit != "" {
		return formatted + " " + unit, true
	}
	return formatted, true
}

// formatBloodPressure composes "systolic/diastolic mmHg" when both readings
// are present.
func formatBloodPressure(bp map[string]interface{}) (string, bool) {
	systolic, ok := bp["systolic"].(map[string]interface{})
	if !ok || systolic["current"] == nil {
		return "", false
	}
	diastolic, ok := bp["diastolic"].(map[string]interface{})
	if !ok || diastolic["current"] == nil {
		return "", false
	}
	unit := "mmHg"
	if u, ok := systolic["unit"].(string); ok && u != "" {
		unit = u
	}
	return formatNumber(systolic["current"]) + "/" + formatNumber(diastolic["current"]) + " " + unit, true
}

func formatNumber(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", n)
	}
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func roundTenth(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
