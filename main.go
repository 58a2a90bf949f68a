// Package main is the entry point for the jiradigest CLI.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/jiradigest/cmd"
	"github.com/danielolaszy/jiradigest/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logging.Debug("starting jiradigest", "version", version, "log_level", logging.LevelFromEnv())

	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
