// Package main provides the entry point for the dsh CLI.
package main

import (
	"os"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/cmd/dsh/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
