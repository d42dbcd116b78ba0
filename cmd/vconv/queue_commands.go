package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vconv/internal/api"
	"vconv/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the daemon's conversion queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs in insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				jobs, err := session.Access.ListQueue(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderQueueTable(jobs))
				return nil
			})
		},
	}
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Upload files to the daemon for conversion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := api.Dial(cmd.Context(), cfg.Paths.APIBind)
			if err != nil {
				return queueaccess.ErrDaemonNotRunning
			}
			defer client.Close()

			resp, err := client.Enqueue(cmd.Context(), target, args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, job := range resp.Jobs {
				fmt.Fprintf(out, "Queued %s as %s (%s → %s)\n", job.SourceName, shortID(job.ID), job.SourceFormat, job.TargetFormat)
			}
			for _, rejected := range resp.Rejected {
				fmt.Fprintf(out, "Rejected %s: %s\n", rejected.Name, rejected.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format (mp4, mkv, webm, avi); defaults to conversion.default_target")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove jobs; removing the converting job halts it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				jobs, err := session.Access.ListQueue(cmd.Context())
				if err != nil {
					return err
				}
				ids := make([]string, len(jobs))
				for i, job := range jobs {
					ids[i] = job.ID
				}
				out := cmd.OutOrStdout()
				for _, arg := range args {
					id, err := resolveID(arg, ids)
					if err != nil {
						return err
					}
					if err := session.Access.RemoveJob(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed job %s\n", shortID(id))
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Halt the converting job and remove every job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				if err := session.Access.ClearQueue(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
				return nil
			})
		},
	}
}
