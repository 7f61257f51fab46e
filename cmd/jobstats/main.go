// Package main provides the entry point for the jobstats CLI.
package main

import (
	"os"

	"github.com/livinlefevreloca/jobstats/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
