package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/registry"
)

func newInspectCommand(a *app) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:     "inspect <repository:tag>",
		Short:   "Show the manifest and config metadata of a tag",
		Example: "  regview inspect library/nginx:1.27",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repository, tag, err := registry.SplitReference(args[0])
			if err != nil {
				return a.fail(cmd, err, nil)
			}

			deps, cleanup, err := a.services(false)
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			defer cleanup()

			info, err := deps.Orchestrator.ImageInfo(cmd.Context(), repository, tag)
			if err != nil {
				return a.fail(cmd, err, nil)
			}

			return a.emit(cmd, info, func(w io.Writer) error {
				return printImageInfo(w, info, history, time.Now())
			})
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "also list the build history")
	return cmd
}

func printImageInfo(w io.Writer, info *imageinfo.ImageInfo, history bool, now time.Time) error {
	color.New(color.Bold).Fprintf(w, "%s:%s\n\n", info.Repository, info.Tag)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	digest := info.Digest
	if digest == "" {
		digest = "-"
	}
	fmt.Fprintf(tw, "Digest:\t%s\n", digest)
	fmt.Fprintf(tw, "Size:\t%s\n", units.HumanSize(float64(info.Size)))
	if info.Manifest != nil {
		fmt.Fprintf(tw, "Layers:\t%d\n", len(info.Manifest.Layers))
		if info.Manifest.MediaType != "" {
			fmt.Fprintf(tw, "Media type:\t%s\n", info.Manifest.MediaType)
		}
	}
	fmt.Fprintf(tw, "Created:\t%s\n", describeCreated(info, now))

	if cfg := info.Config; cfg != nil {
		fmt.Fprintf(tw, "Platform:\t%s/%s\n", cfg.OS, cfg.Architecture)
		if len(cfg.Config.Entrypoint) > 0 {
			fmt.Fprintf(tw, "Entrypoint:\t%s\n", joinOrDash(cfg.Config.Entrypoint))
		}
		fmt.Fprintf(tw, "Cmd:\t%s\n", joinOrDash(cfg.Config.Cmd))
		if cfg.Config.User != "" {
			fmt.Fprintf(tw, "User:\t%s\n", cfg.Config.User)
		}
		if cfg.Config.WorkingDir != "" {
			fmt.Fprintf(tw, "Working dir:\t%s\n", cfg.Config.WorkingDir)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if history && info.Config != nil && len(info.Config.History) > 0 {
		fmt.Fprintln(w)
		color.New(color.Bold).Fprintln(w, "History")
		for _, step := range info.Config.History {
			fmt.Fprintf(w, "  %s\n", step.CreatedBy)
		}
	}
	return nil
}

// describeCreated renders the creation time with its age, marking estimates.
func describeCreated(info *imageinfo.ImageInfo, now time.Time) string {
	created, err := time.Parse(time.RFC3339Nano, info.LastModified)
	if err != nil {
		return info.LastModified
	}

	text := fmt.Sprintf("%s (%s ago)", created.UTC().Format(time.RFC3339), units.HumanDuration(now.Sub(created)))
	if info.LastModifiedEstimated {
		text += color.YellowString(" estimated")
	}
	return text
}
