package cli

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jlumbroso/slacktivate/internal/declarative"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <spec.yaml>",
		Short: "Compile a workspace specification into a resolved model",
		Long:  "Loads user sources, merges identities, expands group and channel rules, and writes the compiled model as JSON on stdout. Relative source paths resolve against the specification's directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			// Source file patterns are written relative to the specification file.
			if dir := filepath.Dir(args[0]); dir != "." {
				if err := os.Chdir(dir); err != nil {
					return err
				}
			}

			model, err := declarative.CompileSpecification(args[0], data)
			if err != nil {
				return err
			}

			slog.Info("compiled specification",
				"source", args[0],
				"users", model.Users().Len(),
				"groups", len(model.Groups()),
				"channels", len(model.Channels()))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(model)
		},
	}

	return cmd
}
