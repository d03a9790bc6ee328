// Command bipctl compiles, runs and inspects BIP component systems.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bip/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
