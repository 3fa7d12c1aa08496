// Package main is the entry point for the retrieval CLI.
package main

import (
	"os"

	"github.com/complyra/retrieval/cmd/retrieval/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
