package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vconv/internal/queueaccess"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect completed conversions",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	historyCmd.AddCommand(newHistoryExportCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completed conversions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				entries, err := session.Access.ListHistory(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "History is empty")
					return nil
				}
				fmt.Fprintln(out, renderHistoryTable(entries))
				return nil
			})
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry from both tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				if err := session.Access.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			})
		},
	}
}

func newHistoryExportCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a converted file from history to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(session queueaccess.Session) error {
				entries, err := session.Access.ListHistory(cmd.Context())
				if err != nil {
					return err
				}
				ids := make([]string, len(entries))
				for i, entry := range entries {
					ids[i] = entry.ID
				}
				id, err := resolveID(args[0], ids)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
				tmp, err := os.CreateTemp(outDir, ".vconv-export-*")
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				name, err := session.Access.DownloadHistory(cmd.Context(), id, tmp)
				closeErr := tmp.Close()
				if err == nil {
					err = closeErr
				}
				if err == nil && name == "" {
					err = errors.New("history entry has no filename")
				}
				if err != nil {
					_ = os.Remove(tmp.Name())
					return err
				}
				target := filepath.Join(outDir, filepath.Base(name))
				if err := os.Rename(tmp.Name(), target); err != nil {
					_ = os.Remove(tmp.Name())
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write the file into")
	return cmd
}
