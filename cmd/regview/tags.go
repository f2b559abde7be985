package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/registry"
)

func newTagsCommand(a *app) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "tags <repository>",
		Short: "List the tags of a repository",
		Example: `  regview tags library/nginx
  regview tags library/nginx --sort semver`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repository := strings.Trim(args[0], "/")
			if err := registry.ValidateRepository(repository); err != nil {
				return a.fail(cmd, err, nil)
			}
			if order != api.SortRegistry && order != api.SortSemver {
				return a.fail(cmd, fmt.Errorf("unknown sort order %q (supported: %s)", order, api.SortSemver), nil)
			}

			deps, cleanup, err := a.services(false)
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			defer cleanup()

			resp := api.NewTagsResponse(repository, deps.Orchestrator.LookupTags(cmd.Context(), repository), order)
			if resp.FetchFailed {
				return a.fail(cmd, errors.New(resp.Error), resp)
			}

			return a.emit(cmd, resp, func(w io.Writer) error {
				return printTags(w, resp)
			})
		},
	}

	cmd.Flags().StringVar(&order, "sort", api.SortRegistry, `tag order: registry order, or "semver" for newest versions first`)
	return cmd
}

func printTags(w io.Writer, resp api.TagsResponse) error {
	if resp.Count == 0 {
		fmt.Fprintf(w, "%s has no tags\n", resp.Repository)
		return nil
	}

	for _, tag := range resp.Tags {
		if tag == resp.Newest {
			fmt.Fprintf(w, "%s %s\n", tag, color.GreenString("(newest)"))
			continue
		}
		fmt.Fprintln(w, tag)
	}
	return nil
}
