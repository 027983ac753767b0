// Command fwlogstore is a reference host for the store package: a thin
// urfave/cli wrapper exposing open/page/tail/filter/meminfo as
// subcommands, in the same shared-flag-var shape as the teacher's own
// cli.App.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
