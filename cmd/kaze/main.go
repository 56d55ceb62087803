package main

import (
	"fmt"
	"os"

	"github.com/dshills/kaze/cmd/kaze/commands"
)

// Version information (set at build time)
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	commands.SetVersion(version, commit, buildTime)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
