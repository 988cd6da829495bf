package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <category>",
		Short: "Print a user's full memory document",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")

	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	doc, err := engine.GetDocument(cmd.Context(), userID, args[0])
	if err != nil {
		exitErr("show", err)
	}

	b, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(b))
}
