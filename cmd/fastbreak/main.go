package main

import (
	"os"

	"github.com/courtdata/fastbreak/cmd/fastbreak/commands"
)

// main is the entry point for the fastbreak CLI.
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
