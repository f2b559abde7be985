package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/version"
)

func newReposCommand(a *app) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"ls"},
		Short:   "List repositories and their tags",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(search) > api.MaxSearchTermLength {
				return a.fail(cmd, fmt.Errorf("search term too long (max %d characters)", api.MaxSearchTermLength), nil)
			}

			deps, cleanup, err := a.services(false)
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			defer cleanup()

			snap := deps.Orchestrator.Refresh(cmd.Context())
			if snap.State == catalog.StateDegraded {
				return a.fail(cmd, errors.New(snap.Error), snap)
			}
			if !snap.Connected && snap.Error != "" {
				a.warnf(cmd, "%s", snap.Error)
			}
			if search != "" {
				snap.Repositories = deps.Orchestrator.Search(search)
			}

			resp := api.RepositoriesResponse{Snapshot: snap, Query: search, Count: len(snap.Repositories)}
			return a.emit(cmd, resp, func(w io.Writer) error {
				return printRepositories(w, a.cfg.Registry.Name, resp)
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only list repositories whose name contains this term")
	return cmd
}

func printRepositories(w io.Writer, registryName string, resp api.RepositoriesResponse) error {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s (%d repositories)\n\n", registryName, resp.Count)

	if resp.Count == 0 {
		if resp.Query != "" {
			fmt.Fprintf(w, "No repositories match %q\n", resp.Query)
		} else {
			fmt.Fprintln(w, "No repositories found")
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tTAGS\tNEWEST")
	for _, repo := range resp.Repositories {
		count := fmt.Sprintf("%d", len(repo.Tags))
		if repo.TagsFailed {
			count = color.RedString("failed")
		}
		newest := version.Newest(repo.Tags)
		if newest == "" {
			newest = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", repo.Name, count, newest)
	}
	return tw.Flush()
}

// joinOrDash renders a list for a single table cell.
func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, " ")
}
