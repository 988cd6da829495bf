package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record <category> <path> <value>",
		Short: "Record a measurement reading",
		Long:  "Append a reading to a measurement's history and make it the current value. The path must address a measurement field of the category, e.g. 'body_composition/weight'. Value is parsed as JSON; a bare word is taken as a string.",
		Args:  cobra.ExactArgs(3),
		Run:   runRecord,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().String("time", "", "Reading timestamp, RFC 3339 (default: now)")
	cmd.Flags().String("source", "cli", "Reading source")
	cmd.Flags().String("notes", "", "Optional notes")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	timeFlag, _ := cmd.Flags().GetString("time")
	source, _ := cmd.Flags().GetString("source")
	notes, _ := cmd.Flags().GetString("notes")

	timestamp := time.Now().UTC()
	if timeFlag != "" {
		parsed, err := time.Parse(time.RFC3339, timeFlag)
		if err != nil {
			exitErr("parse time", err)
		}
		timestamp = parsed
	}

	var value interface{}
	if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
		value = args[2]
	}

	engine, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer engine.Close()

	doc, err := engine.RecordMeasurement(cmd.Context(), userID, args[0], args[1], value, timestamp, source, notes)
	if err != nil {
		exitErr("record", err)
	}

	b, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(b))
}
