// Package main provides the entry point for the grove CLI.
package main

import (
	"context"
	"os"

	"github.com/grovekit/grove/internal/cli"
)

// Build-time variables set via ldflags.
//
//nolint:gochecknoglobals // Set by the linker
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	os.Exit(cli.ExitCodeForError(err))
}
