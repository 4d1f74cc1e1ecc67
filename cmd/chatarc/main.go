// chatarc is an incremental archiver for message streams: it maintains a
// local SQLite archive per source, syncs only what is missing, and
// renders txt/jsonl projections of what it has.
package main

import (
	"fmt"
	"os"

	"github.com/chatarc/chatarc/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
