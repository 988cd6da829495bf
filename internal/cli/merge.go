package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge <category> [payload]",
		Short: "Deep-merge a JSON payload into a user's document",
		Long:  "Deep-merge a JSON payload into a user's document. The payload is validated against the category schema first; a single violation rejects the whole merge. Null values delete keys. Payload can be a positional arg or piped via stdin.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runMerge,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runMerge(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")

	raw := readPayload(cmd, args[1:])
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		exitErr("parse payload", err)
	}

	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	doc, err := engine.ApplyDeepMerge(cmd.Context(), userID, args[0], payload)
	if err != nil {
		exitErr("merge", err)
	}

	b, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(b))
}

// readPayload returns the positional payload arg, falling back to stdin.
func readPayload(cmd *cobra.Command, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	exitErr(cmd.Name(), fmt.Errorf("payload is required (positional arg or stdin)"))
	return ""
}
