// Command viewgen generates query and update views from CUE mappings.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/viewgen/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands print their own output; only errors cobra raised itself
		// (bad flags, missing args) still need printing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
