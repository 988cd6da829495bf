package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zestify/healthmem/pkg/template"
)

func init() {
	schemaCmd := &cobra.Command{
		Use:   "schema <category>",
		Short: "Print a category's schema",
		Args:  cobra.ExactArgs(1),
		Run:   runSchema,
	}
	RootCmd.AddCommand(schemaCmd)

	categoriesCmd := &cobra.Command{
		Use:   "categories",
		Short: "List known categories and their aliases",
		Args:  cobra.NoArgs,
		Run:   runCategories,
	}
	RootCmd.AddCommand(categoriesCmd)
}

func runSchema(cmd *cobra.Command, args []string) {
	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	schema, err := engine.ResolveSchema(args[0])
	if err != nil {
		exitErr("schema", err)
	}

	out := map[string]interface{}{
		"category": schema.Category,
		"aliases":  schema.Aliases,
		"fields":   describeFields(schema.Fields),
	}
	if len(schema.Truncate) > 0 {
		out["truncate"] = schema.Truncate
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func runCategories(cmd *cobra.Command, args []string) {
	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	for _, category := range engine.Categories() {
		schema, err := engine.ResolveSchema(string(category))
		if err != nil {
			exitErr("categories", err)
		}
		if len(schema.Aliases) > 0 {
			fmt.Printf("%s (aliases: %v)\n", category, schema.Aliases)
		} else {
			fmt.Println(category)
		}
	}
}

// describeFields renders the field tree with kinds and units, without
// defaults or internal spec details.
func describeFields(fields map[string]*template.FieldSpec) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, spec := range fields {
		switch spec.Kind {
		case template.KindObject:
			out[name] = map[string]interface{}{
				"kind":   spec.Kind,
				"fields": describeFields(spec.Fields),
			}
		case template.KindMeasurement:
			desc := map[string]interface{}{"kind": spec.Kind}
			if spec.Unit != "" {
				desc["unit"] = spec.Unit
			}
			out[name] = desc
		default:
			out[name] = map[string]interface{}{"kind": spec.Kind}
		}
	}
	return out
}
