package main

import (
	"fmt"
	"io"
	"strconv"

	"p4-go/internal/p4"

	"github.com/spf13/cobra"
)

func parseChange(arg string) (int, error) {
	if arg == "default" {
		return 0, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid changelist %q", arg)
	}
	return n, nil
}

func renderChangelist(cl *p4.Changelist) error {
	v := newChangelistView(cl)
	return renderStdout(v, func(w io.Writer) { printChangelist(w, v) })
}

// change command
var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Manage changelists",
}

var changeShowCmd = &cobra.Command{
	Use:   "show [CHANGE]",
	Short: "Show a changelist and its files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number := 0
		if len(args) == 1 {
			var err error
			if number, err = parseChange(args[0]); err != nil {
				return err
			}
		}

		a, err := newApp("ShowChange")
		if err != nil {
			return err
		}
		defer a.Close()

		cl, err := a.Changelist(number)
		if err != nil {
			return err
		}
		return renderChangelist(cl)
	},
}

var changeFindCmd = &cobra.Command{
	Use:   "find DESCRIPTION",
	Short: "Find a pending changelist by description, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("FindChange")
		if err != nil {
			return err
		}
		defer a.Close()

		cl, err := a.FindChangelist(args[0])
		if err != nil {
			return err
		}
		return renderChangelist(cl)
	},
}

var changeDescribeCmd = &cobra.Command{
	Use:   "describe CHANGE DESCRIPTION",
	Short: "Replace the description of a pending changelist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseChange(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("DescribeChange")
		if err != nil {
			return err
		}
		defer a.Close()

		cl, err := a.EditChangelist(number, args[1])
		if err != nil {
			return err
		}
		return renderChangelist(cl)
	},
}

// changeAction builds a change subcommand that acts on one numbered changelist.
func changeAction(use, short string, run func(cmd *cobra.Command, number int) (*p4.Changelist, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CHANGE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			cl, err := run(cmd, number)
			if err != nil {
				return err
			}
			return renderChangelist(cl)
		},
	}
}

var changeSubmitCmd = changeAction("submit", "Submit a pending changelist",
	func(cmd *cobra.Command, number int) (*p4.Changelist, error) {
		a, err := newApp("Submit")
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.SubmitChangelist(number)
	})

var changeRevertCmd = changeAction("revert", "Revert the files of a changelist",
	func(cmd *cobra.Command, number int) (*p4.Changelist, error) {
		unchanged, _ := cmd.Flags().GetBool("unchanged")

		a, err := newApp("RevertChange")
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.RevertChangelist(number, unchanged)
	})

var changeDeleteCmd = changeAction("delete", "Revert the files of a changelist and delete it",
	func(cmd *cobra.Command, number int) (*p4.Changelist, error) {
		a, err := newApp("DeleteChange")
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.DeleteChangelist(number)
	})

func registerChangeCommands() {
	rootCmd.AddCommand(changeCmd)
	changeCmd.AddCommand(changeShowCmd, changeFindCmd, changeDescribeCmd, changeSubmitCmd, changeRevertCmd, changeDeleteCmd)
	changeRevertCmd.Flags().BoolP("unchanged", "a", false, "Only revert unchanged files")
}
