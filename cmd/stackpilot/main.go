package main

import (
	"os"

	"github.com/brunohrs/stackpilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
