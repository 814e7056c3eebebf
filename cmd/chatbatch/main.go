// Package main provides the chatbatch command.
package main

import (
	"os"

	"github.com/leapstack-labs/chatbatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
