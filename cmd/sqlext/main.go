// Package main is the entry point for the sqlext CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/sqlext/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
