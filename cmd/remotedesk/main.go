// Package main is the remotedesk CLI entry point
package main

import (
	"fmt"
	"os"

	"github.com/remotedesk/remotedesk/cmd/remotedesk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
