package main

import (
	"fmt"
	"io"

	"p4-go/internal/app"
	"p4-go/internal/p4"

	"github.com/spf13/cobra"
)

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls PATH...",
	Short: "Show file status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		excludeDeleted, _ := cmd.Flags().GetBool("exclude-deleted")

		a, err := newApp("Ls")
		if err != nil {
			return err
		}
		defer a.Close()

		revs, err := a.Ls(args, p4.LsOptions{Strict: strict, ExcludeDeleted: excludeDeleted})
		if err != nil {
			return err
		}
		return renderStdout(revisionRecords(revs), func(w io.Writer) {
			if len(revs) == 0 {
				fmt.Fprintln(w, "No files found.")
				return
			}
			printRevisions(w, revs)
		})
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Open files for add",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		change, _ := cmd.Flags().GetInt("change")

		a, err := newApp("Add")
		if err != nil {
			return err
		}
		defer a.Close()

		revs, err := a.Add(args, change)
		if err != nil {
			return err
		}
		return renderStdout(revisionRecords(revs), func(w io.Writer) { printRevisions(w, revs) })
	},
}

// fileCommand builds a command that applies one app operation to files in a
// changelist.
func fileCommand(use, short, operation string, run func(a *app.P4App, paths []string, change int) ([]*p4.Revision, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " PATH...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, _ := cmd.Flags().GetInt("change")

			a, err := newApp(operation)
			if err != nil {
				return err
			}
			defer a.Close()

			revs, err := run(a, args, change)
			if err != nil {
				return err
			}
			return renderStdout(revisionRecords(revs), func(w io.Writer) { printRevisions(w, revs) })
		},
	}
	cmd.Flags().IntP("change", "c", 0, "Changelist number (0 for default)")
	return cmd
}

var (
	editCmd   = fileCommand("edit", "Open files for edit", "Edit", (*app.P4App).Edit)
	lockCmd   = fileCommand("lock", "Lock opened files", "Lock", (*app.P4App).Lock)
	unlockCmd = fileCommand("unlock", "Unlock opened files", "Unlock", (*app.P4App).Unlock)
	deleteCmd = fileCommand("delete", "Open files for delete", "Delete", (*app.P4App).Delete)
	shelveCmd = fileCommand("shelve", "Shelve opened files", "Shelve", (*app.P4App).Shelve)
)

// revert command
var revertCmd = &cobra.Command{
	Use:   "revert PATH...",
	Short: "Discard changes to opened files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unchanged, _ := cmd.Flags().GetBool("unchanged")

		a, err := newApp("Revert")
		if err != nil {
			return err
		}
		defer a.Close()

		revs, err := a.Revert(args, unchanged)
		if err != nil {
			return err
		}
		return renderStdout(revisionRecords(revs), func(w io.Writer) {
			for _, r := range revs {
				fmt.Fprintf(w, "%s reverted\n", r.DepotFile())
			}
		})
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync PATH...",
	Short: "Sync files to the workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts p4.SyncOptions
		opts.Force, _ = cmd.Flags().GetBool("force")
		opts.Safe, _ = cmd.Flags().GetBool("safe")
		opts.Revision, _ = cmd.Flags().GetInt("revision")

		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		revs, err := a.Sync(args, opts)
		if err != nil {
			return err
		}
		return renderStdout(revisionRecords(revs), func(w io.Writer) { printRevisions(w, revs) })
	},
}

// move command
var moveCmd = &cobra.Command{
	Use:   "move SOURCE DEST",
	Short: "Move (rename) a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		change, _ := cmd.Flags().GetInt("change")
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("Move")
		if err != nil {
			return err
		}
		defer a.Close()

		rev, err := a.Move(args[0], args[1], change, force)
		if err != nil {
			return err
		}
		return renderStdout(rev.Record(), func(w io.Writer) {
			fmt.Fprintf(w, "%s moved from %s\n", rev.DepotFile(), args[0])
		})
	},
}

func registerFileCommands() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("strict", false, "Fail instead of printing nothing when a path cannot be listed")
	lsCmd.Flags().Bool("exclude-deleted", false, "Skip files deleted at head")

	rootCmd.AddCommand(addCmd)
	addCmd.Flags().IntP("change", "c", 0, "Changelist number (0 for default)")

	rootCmd.AddCommand(editCmd, lockCmd, unlockCmd, deleteCmd, shelveCmd)

	rootCmd.AddCommand(revertCmd)
	revertCmd.Flags().BoolP("unchanged", "a", false, "Only revert unchanged files")

	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("force", "f", false, "Resync even when the workspace has the revision")
	syncCmd.Flags().BoolP("safe", "s", false, "Refuse to overwrite files changed outside Perforce")
	syncCmd.Flags().IntP("revision", "r", 0, "Revision to sync (0 for head)")

	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().IntP("change", "c", 0, "Changelist number (0 for default)")
	moveCmd.Flags().BoolP("force", "f", false, "Overwrite an existing target")
}
