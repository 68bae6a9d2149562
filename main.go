// Package main is the entry point for the tunstack user-space TCP/IP stack.
package main

import (
	"fmt"
	"os"

	"github.com/nissy-dev/tunstack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
