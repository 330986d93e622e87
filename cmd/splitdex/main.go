// Package main provides the entry point for the splitdex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/splitdex/cmd/splitdex/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
