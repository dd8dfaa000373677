// Package main provides the entry point for the prova CLI.
package main

import (
	"os"

	"github.com/roach88/prova/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
