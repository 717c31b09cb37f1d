// Command bankserver runs the bank transaction server and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bankserver/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
