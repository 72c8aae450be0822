package main

import (
	"os"

	"github.com/Salta1414/sapo-cli/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
