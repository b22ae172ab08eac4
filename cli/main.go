package main

import (
	"os"

	"github.com/vigil-systems/vigil/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
