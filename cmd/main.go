package main

// price-bot entry point; all behaviour lives in the cobra commands

import (
	"fmt"
	"os"

	"price-bot/cmd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
