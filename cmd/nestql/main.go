// Command nestql compiles nested object requests to SQL and runs them
// against PostgreSQL, MySQL or SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nestql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
