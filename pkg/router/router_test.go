package router

import (
	"errors"
	"testing"

	"github.com/zestify/healthmem/pkg/merge"
	"github.com/zestify/healthmem/pkg/template"
)

func testRegistry(t *testing.T) *template.Registry {
	t.Helper()
	reg, err := template.Load()
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	return reg
}

func TestRoute_ByPrefix(t *testing.T) {
	reg := testRegistry(t)

	routed := Route(reg, []merge.PatchOperation{
		{Op: merge.OpReplace, Path: "/biometrics/body_composition/weight/current", Value: 75.0},
		{Op: merge.OpAdd, Path: "/workout/recent_workouts/-", Value: map[string]interface{}{}},
	})

	if len(routed.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", routed.Rejections)
	}

	bio := routed.ByCategory[template.CategoryBiometrics]
	if len(bio) != 1 {
		t.Fatalf("biometrics ops = %d, want 1", len(bio))
	}
	if bio[0].Op.Path != "/body_composition/weight/current" {
		t.Errorf("prefix not stripped: %q", bio[0].Op.Path)
	}

	workout := routed.ByCategory[template.CategoryWorkout]
	if len(workout) != 1 || workout[0].Op.Path != "/recent_workouts/-" {
		t.Errorf("workout ops = %+v", workout)
	}
}

func TestRoute_Aliases(t *testing.T) {
	reg := testRegistry(t)

	aliases := []string{
		"/health_metrics/resting_heart_rate/current",
		"/vitals/resting_heart_rate/current",
		"/measurements/resting_heart_rate/current",
		"health_metrics.resting_heart_rate.current",
	}
	for _, path := range aliases {
		routed := Route(reg, []merge.PatchOperation{{Op: merge.OpReplace, Path: path, Value: 60}})
		ops := routed.ByCategory[template.CategoryBiometrics]
		if len(ops) != 1 {
			t.Errorf("path %q did not route to biometrics: %+v", path, routed)
			continue
		}
		if ops[0].Op.Path != "/resting_heart_rate/current" {
			t.Errorf("path %q rewritten to %q", path, ops[0].Op.Path)
		}
	}
}

func TestRoute_UnprefixedProfileFields(t *testing.T) {
	reg := testRegistry(t)

	routed := Route(reg, []merge.PatchOperation{
		{Op: merge.OpReplace, Path: "name", Value: "Ada"},
		{Op: merge.OpReplace, Path: "demographics.age", Value: 31},
	})

	if len(routed.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", routed.Rejections)
	}
	profile := routed.ByCategory[template.CategoryProfile]
	if len(profile) != 2 {
		t.Fatalf("profile ops = %d, want 2", len(profile))
	}
	if profile[0].Op.Path != "/name" || profile[1].Op.Path != "/demographics/age" {
		t.Errorf("unexpected rewritten paths: %+v", profile)
	}
}

func TestRoute_PreservesOrderWithinCategory(t *testing.T) {
	reg := testRegistry(t)

	routed := Route(reg, []merge.PatchOperation{
		{Op: merge.OpAdd, Path: "/biometrics/lab_results/-", Value: "first"},
		{Op: merge.OpReplace, Path: "name", Value: "Ada"},
		{Op: merge.OpAdd, Path: "/vitals/lab_results/-", Value: "second"},
		{Op: merge.OpAdd, Path: "/biometrics/lab_results/-", Value: "third"},
	})

	bio := routed.ByCategory[template.CategoryBiometrics]
	if len(bio) != 3 {
		t.Fatalf("biometrics ops = %d, want 3", len(bio))
	}
	wantIndices := []int{0, 2, 3}
	wantValues := []interface{}{"first", "second", "third"}
	for i := range bio {
		if bio[i].Index != wantIndices[i] {
			t.Errorf("op %d index = %d, want %d", i, bio[i].Index, wantIndices[i])
		}
		if bio[i].Op.Value != wantValues[i] {
			t.Errorf("op %d value = %v, want %v", i, bio[i].Op.Value, wantValues[i])
		}
	}
}

func TestRoute_IndividualRejections(t *testing.T) {
	reg := testRegistry(t)

	routed := Route(reg, []merge.PatchOperation{
		{Op: merge.OpReplace, Path: "/nutrition/calories", Value: 2000},
		{Op: merge.OpReplace, Path: "name", Value: "Ada"},
		{Op: merge.OpReplace, Path: ""},
		{Op: merge.OpReplace, Path: "/biometrics"},
	})

	if len(routed.Rejections) != 3 {
		t.Fatalf("rejections = %d, want 3: %+v", len(routed.Rejections), routed.Rejections)
	}
	for _, r := range routed.Rejections {
		if !errors.Is(r.Err, ErrUnroutablePath) {
			t.Errorf("rejection %d: expected ErrUnroutablePath, got %v", r.Index, r.Err)
		}
	}
	wantIndices := map[int]bool{0: true, 2: true, 3: true}
	for _, r := range routed.Rejections {
		if !wantIndices[r.Index] {
			t.Errorf("unexpected rejection index %d", r.Index)
		}
	}

	// The routable sibling still routes.
	if len(routed.ByCategory[template.CategoryProfile]) != 1 {
		t.Error("valid operation must route despite sibling rejections")
	}
}
