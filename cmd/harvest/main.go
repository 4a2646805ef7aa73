package main

import (
	"os"

	"github.com/wonny/harvest/backend/cmd/harvest/commands"
)

// main is the entry point for the harvest CLI
// ⭐ single CLI entry point: go run ./cmd/harvest [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
