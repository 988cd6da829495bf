package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "project <category>",
		Short: "Print the compact view of a user's document",
		Args:  cobra.ExactArgs(1),
		Run:   runProject,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runProject(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")

	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	view, err := engine.GetProjection(cmd.Context(), userID, args[0])
	if err != nil {
		exitErr("project", err)
	}

	b, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(b))
}
