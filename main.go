// The main package for the cornerbot executable.
package main

import (
	"fmt"
	"os"

	"github.com/CornerLeague/Corner-League-Bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
