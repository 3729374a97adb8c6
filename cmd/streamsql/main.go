// Command streamsql plans streaming SQL queries over declared streams and
// tables and runs them against the in-process reference runtime.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/streamsql/internal/cli"
)

// Version information, set at build time via -ldflags
var (
	Version = "dev"     // -X main.Version=$(git describe --tags --always)
	Commit  = "unknown" // -X main.Commit=$(git rev-parse --short HEAD)
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (%s)", Version, Commit)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
