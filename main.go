package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/raffihsieh/update-experimental/cmd"
)

func main() {
	if err := cmd.InitCommands(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize commands: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cmd.ErrSetup) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
