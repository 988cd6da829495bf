// Package cli implements the healthmem CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zestify/healthmem/pkg/healthmem"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "healthmem",
	Short: "Versioned health memory documents",
	Long:  "A CLI for schema-validated per-user health memory documents. Patch, merge, record measurements, project compact views. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $HEALTHMEM_DB or ~/.healthmem/memory.db)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("HEALTHMEM_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".healthmem", "memory.db")
}

func openEngine() (*healthmem.Engine, error) {
	return healthmem.New(healthmem.Config{DBPath: getDBPath()})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
