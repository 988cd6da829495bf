package main

import (
	"os"

	"github.com/zestify/healthmem/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
