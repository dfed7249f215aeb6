package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jlumbroso/slacktivate/internal/declarative"
)

func newValidateCmd() *cobra.Command {
	var skipSourceChecks bool

	cmd := &cobra.Command{
		Use:   "validate <spec.yaml>",
		Short: "Validate a workspace specification offline",
		Long:  "Parses a specification file and checks schema, template, and filter syntax, reporting every violation at once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := declarative.LoadFile(args[0])
			if err != nil {
				return err
			}

			violations := declarative.Validate(raw, declarative.ValidateOptions{
				SkipSourceChecks: skipSourceChecks,
			})
			if len(violations) > 0 {
				fmt.Fprintf(os.Stderr, "Specification has %d validation error(s):\n", len(violations))
				for _, v := range violations {
					fmt.Fprintf(os.Stderr, "  - %s\n", v.Error())
				}
				os.Exit(1)
			}

			slog.Info("specification is valid", "source", args[0])
			_, _ = fmt.Fprintln(os.Stdout, "Specification is valid.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSourceChecks, "skip-source-checks", false, "Skip checking that user source files exist on disk")

	return cmd
}
