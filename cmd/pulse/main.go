// Package main is the entrypoint for the pulse offline CLI.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/pulseboard/pulseboard/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
