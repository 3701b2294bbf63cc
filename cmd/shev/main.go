// shev is the command-line client for the shev backend.
package main

import (
	"fmt"
	"os"

	"github.com/rhkang/shev/cmd/shev/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
