// Package template holds the immutable catalog of document schemas, one per
// category. The registry is loaded once at process start from embedded YAML
// templates and is read-only afterward.
package template

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Category identifies one kind of per-user document.
type Category string

// Registered categories. The set is fixed at load time; new categories are
// added by dropping a template file into templates/.
const (
	CategoryProfile        Category = "profile"
	CategoryBiometrics     Category = "biometrics"
	CategoryWorkout        Category = "workout"
	CategorySleep          Category = "sleep"
	CategoryMedicalHistory Category = "medical_history"
	CategoryGoals          Category = "goals"
	CategoryActivity       Category = "activity"
	CategoryChatHistory    Category = "chat_history"
)

// FieldKind classifies a declared field.
type FieldKind string

const (
	KindScalar      FieldKind = "scalar"
	KindMeasurement FieldKind = "measurement"
	KindList        FieldKind = "list"
	KindObject      FieldKind = "object"
)

// Sentinel errors for schema lookups and path validation.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrSchemaViolation = errors.New("schema violation")
)

// FieldSpec describes one declared field: its kind, its default value, and
// (for objects) its declared children.
type FieldSpec struct {
	Kind    FieldKind
	Default interface{}
	// Unit is the default unit for measurement fields.
	Unit string
	// Fields holds the declared children of an object field.
	Fields map[string]*FieldSpec
}

// SchemaDescriptor is the complete schema for one category.
type SchemaDescriptor struct {
	Category Category
	// Aliases are alternative path prefixes that route to this category
	// (e.g. "health_metrics" for biometrics).
	Aliases []string
	Fields  map[string]*FieldSpec
	// Truncate maps top-level list field names to the number of most recent
	// entries kept by projections.
	Truncate map[string]int
}

// PathInfo describes where a validated path lands in the schema.
type PathInfo struct {
	// Kind is the effective kind at the addressed location. For a
	// measurement's "current"/"unit" children it is KindScalar; for its
	// "history" child it is KindList.
	Kind FieldKind
	// Spec is the deepest schema-declared field the path passed through.
	Spec *FieldSpec
	// ThroughHistory is true if the path addresses, or descends into, a
	// measurement's history. History is append-only and may only be mutated
	// by the history tracker.
	ThroughHistory bool
	// Free is true if the addressed location is inside a list element, where
	// the schema does not constrain shape.
	Free bool
}

// Registry is the process-wide catalog of schemas. Immutable after Load.
type Registry struct {
	schemas  map[Category]*SchemaDescriptor
	prefixes map[string]Category
}

// yaml wire structures for template files
type fileField struct {
	Kind    string               `yaml:"kind"`
	Unit    string               `yaml:"unit"`
	Default interface{}          `yaml:"default"`
	Fields  map[string]fileField `yaml:"fields"`
}

type fileSchema struct {
	Category string               `yaml:"category"`
	Aliases  []string             `yaml:"aliases"`
	Fields   map[string]fileField `yaml:"fields"`
	Truncate map[string]int       `yaml:"truncate"`
}

// Load parses all embedded templates and builds the registry.
// A parse or validation failure is fatal for the engine: callers must refuse
// to service requests if Load returns an error.
func Load() (*Registry, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	reg := &Registry{
		schemas:  make(map[Category]*SchemaDescriptor),
		prefixes: make(map[string]Category),
	}

	for _, entry := range entries {
		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}

		var fs fileSchema
		if err := yaml.Unmarshal(data, &fs); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", entry.Name(), err)
		}
		if fs.Category == "" {
			return nil, fmt.Errorf("template %s declares no category", entry.Name())
		}

		schema := &SchemaDescriptor{
			Category: Category(fs.Category),
			Aliases:  fs.Aliases,
			Fields:   make(map[string]*FieldSpec, len(fs.Fields)),
			Truncate: fs.Truncate,
		}
		for name, f := range fs.Fields {
			spec, err := buildField(entry.Name(), name, f)
			if err != nil {
				return nil, err
			}
			schema.Fields[name] = spec
		}

		if _, dup := reg.schemas[schema.Category]; dup {
			return nil, fmt.Errorf("duplicate template for category %q", schema.Category)
		}
		reg.schemas[schema.Category] = schema

		reg.prefixes[string(schema.Category)] = schema.Category
		for _, alias := range schema.Aliases {
			if existing, dup := reg.prefixes[alias]; dup {
				return nil, fmt.Errorf("alias %q claimed by both %q and %q", alias, existing, schema.Category)
			}
			reg.prefixes[alias] = schema.Category
		}
	}

	if len(reg.schemas) == 0 {
		return nil, fmt.Errorf("no templates found")
	}

	return reg, nil
}

func buildField(file, name string, f fileField) (*FieldSpec, error) {
	kind := FieldKind(f.Kind)
	switch kind {
	case KindScalar, KindMeasurement, KindList, KindObject:
	default:
		return nil, fmt.Errorf("template %s: field %q has unknown kind %q", file, name, f.Kind)
	}

	spec := &FieldSpec{
		Kind:    kind,
		Default: f.Default,
		Unit:    f.Unit,
	}

	if kind == KindObject {
		if len(f.Fields) == 0 {
			return nil, fmt.Errorf("template %s: object field %q declares no children", file, name)
		}
		spec.Fields = make(map[string]*FieldSpec, len(f.Fields))
		for childName, child := range f.Fields {
			childSpec, err := buildField(file, name+"."+childName, child)
			if err != nil {
				return nil, err
			}
			spec.Fields[childName] = childSpec
		}
	} else if len(f.Fields) > 0 {
		return nil, fmt.Errorf("template %s: %s field %q must not declare children", file, f.Kind, name)
	}

	return spec, nil
}

// Resolve returns the schema for a category, or ErrUnknownCategory.
func (r *Registry) Resolve(category Category) (*SchemaDescriptor, error) {
	schema, ok := r.schemas[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return schema, nil
}

// Categories returns all registered categories in sorted order.
func (r *Registry) Categories() []Category {
	cats := make([]Category, 0, len(r.schemas))
	for c := range r.schemas {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// CategoryForPrefix maps a path prefix (category name or alias) to its
// category. Returns false if no category claims the prefix.
func (r *Registry) CategoryForPrefix(prefix string) (Category, bool) {
	c, ok := r.prefixes[prefix]
	return c, ok
}

// DefaultPayload instantiates a fresh payload from the schema's defaults.
// Measurements start as {current: nil, unit: <default unit>, history: []},
// lists start empty, objects recurse, scalars take their declared default.
func (s *SchemaDescriptor) DefaultPayload() map[string]interface{} {
	return defaultObject(s.Fields)
}

func defaultObject(fields map[string]*FieldSpec) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, spec := range fields {
		out[name] = spec.Instantiate()
	}
	return out
}

// Instantiate builds the default value for a single field. Used both when
// creating fresh documents and when the merge engine materializes declared
// intermediate containers on patch application.
func (f *FieldSpec) Instantiate() interface{} {
	switch f.Kind {
	case KindObject:
		return defaultObject(f.Fields)
	case KindMeasurement:
		return map[string]interface{}{
			"current": nil,
			"unit":    f.Unit,
			"history": []interface{}{},
		}
	case KindList:
		return []interface{}{}
	default:
		return f.Default
	}
}

// ResolvePath validates a path (already split into segments, category prefix
// removed) against the schema. Every segment must resolve to a declared
// field until the path enters a list element, below which shape is
// unconstrained. Returns ErrSchemaViolation for undeclared segments.
func (s *SchemaDescriptor) ResolvePath(segments []string) (*PathInfo, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrSchemaViolation)
	}

	fields := s.Fields
	info := &PathInfo{}

	for i := 0; i < len(segments); i++ {
		seg := segments[i]

		if fields == nil {
			// Inside a scalar: nothing below is addressable.
			return nil, violation(segments[:i+1])
		}

		next, ok := fields[seg]
		if !ok {
			return nil, violation(segments[:i+1])
		}
		info.Spec = next
		info.Kind = next.Kind
		fields = nil

		switch next.Kind {
		case KindObject:
			fields = next.Fields
		case KindMeasurement:
			if i+1 < len(segments) {
				rest := segments[i+1:]
				return s.resolveMeasurementChild(info, segments[:i+1], rest)
			}
		case KindList:
			if i+1 < len(segments) {
				return resolveListElement(info, segments[:i+1], segments[i+1:])
			}
		}
	}

	return info, nil
}

func (s *SchemaDescriptor) resolveMeasurementChild(info *PathInfo, prefix, rest []string) (*PathInfo, error) {
	switch rest[0] {
	case "current", "unit":
		if len(rest) > 1 {
			return nil, violation(append(prefix, rest...))
		}
		info.Kind = KindScalar
		return info, nil
	case "history":
		info.Kind = KindList
		info.ThroughHistory = true
		if len(rest) > 1 {
			return resolveListElement(info, append(prefix, rest[0]), rest[1:])
		}
		return info, nil
	default:
		return nil, violation(append(prefix, rest[0]))
	}
}

func resolveListElement(info *PathInfo, prefix, rest []string) (*PathInfo, error) {
	seg := rest[0]
	if seg != "-" {
		if _, err := strconv.Atoi(seg); err != nil {
			return nil, violation(append(prefix, seg))
		}
	}
	// Below a list element the schema no longer constrains shape.
	info.Free = true
	info.Kind = ""
	if len(rest) > 1 && seg == "-" {
		// The append marker must be the final segment.
		return nil, violation(append(prefix, rest...))
	}
	return info, nil
}

func violation(segments []string) error {
	return fmt.Errorf("%w: path %q is not declared", ErrSchemaViolation, strings.Join(segments, "/"))
}
