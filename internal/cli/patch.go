package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zestify/healthmem/pkg/healthmem"
)

func init() {
	cmd := &cobra.Command{
		Use:   "patch [operations]",
		Short: "Apply patch operations across a user's documents",
		Long:  "Apply a JSON array of patch operations ({op, path, value}) to a user's documents. Paths are routed to categories by prefix; unprefixed paths address the profile. Operations apply with partial-success semantics. Operations can be a positional arg or piped via stdin.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runPatch,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runPatch(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")

	raw := readPayload(cmd, args)
	var ops []healthmem.PatchOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		exitErr("parse operations", err)
	}

	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	report, err := engine.ApplyPatch(cmd.Context(), userID, ops)
	if err != nil {
		exitErr("patch", err)
	}

	printPatchReport(report)
}

// printPatchReport renders per-operation results and rejections in a
// shell-friendly summary, then the updated documents as JSON.
func printPatchReport(report *healthmem.PatchReport) {
	for category, outcome := range report.Outcomes {
		for _, result := range outcome.Results {
			status := "ok"
			if !result.OK() {
				status = result.Error
			}
			fmt.Printf("[%d] %s %s (%s): %s\n", result.Index, result.Op, result.Path, category, status)
		}
	}
	for _, rejection := range report.Rejections {
		fmt.Printf("[%d] %s %s: %v\n", rejection.Index, rejection.Op.Op, rejection.Op.Path, rejection.Err)
	}

	b, _ := json.MarshalIndent(report.Outcomes, "", "  ")
	fmt.Println(string(b))
}
