// Package main provides the entry point for the crucible CLI.
package main

import (
	"os"

	"github.com/crucible-dev/crucible/cmd/crucible/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
