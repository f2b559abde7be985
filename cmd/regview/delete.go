package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/registry"
)

func newDeleteCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <repository:tag>",
		Aliases: []string{"rm"},
		Short:   "Delete the manifest a tag points to",
		Long: `Delete the manifest a tag points to. Every tag sharing that manifest
disappears with it. Blobs are only reclaimed by the registry's garbage collector.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repository, tag, err := registry.SplitReference(args[0])
			if err != nil {
				return a.fail(cmd, err, nil)
			}

			if !yes {
				if a.jsonOutput {
					return a.fail(cmd, errors.New("--yes is required with --json"), nil)
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s:%s?", repository, tag))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			deps, cleanup, err := a.services(false)
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			defer cleanup()

			deleted, err := deps.Orchestrator.DeleteTag(cmd.Context(), repository, tag)
			if err != nil {
				return a.fail(cmd, err, nil)
			}

			resp := api.DeleteResponse{Repository: repository, Tag: tag, Deleted: deleted}
			return a.emit(cmd, resp, func(w io.Writer) error {
				if !deleted {
					a.warnf(cmd, "registry returned no digest for %s:%s, nothing deleted", repository, tag)
					return nil
				}
				fmt.Fprintf(w, "%s %s:%s\n", color.GreenString("Deleted"), repository, tag)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything but y or yes declines.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
