package main

import (
	"os"

	"github.com/chainq-dev/chainq/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
