package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal"
)

func main() {
	cli := terminal.NewCLI(terminal.Options{
		Logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		Output: os.Stdout,
	})

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
