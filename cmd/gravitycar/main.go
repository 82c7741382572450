package main

import (
	"os"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
