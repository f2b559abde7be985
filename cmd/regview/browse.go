package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/tui"
)

func newBrowseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse repositories, tags and images interactively",
		Long: `Open a full-screen browser on the registry. Pick a repository to list its
tags, pick a tag to inspect its image, and press d on a tag to delete it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return a.fail(cmd, errors.New("browse is interactive; use repos, tags or inspect with --json"), nil)
			}

			deps, cleanup, err := a.services(false)
			if err != nil {
				return err
			}
			defer cleanup()

			return tui.Run(cmd.Context(), deps.Orchestrator, a.cfg.Registry.Name, a.logger)
		},
	}
}
