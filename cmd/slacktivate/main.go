// Package main is the entry point for the slacktivate CLI binary.
package main

import (
	"log/slog"
	"os"

	cli "github.com/jlumbroso/slacktivate/pkg/cli"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	os.Exit(cli.Execute())
}
