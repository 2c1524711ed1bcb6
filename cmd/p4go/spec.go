package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const specTimeFormat = "2006-01-02 15:04:05"

// client command
var clientCmd = &cobra.Command{
	Use:   "client [NAME]",
	Short: "Show a client workspace spec",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		a, err := newApp("Client")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Client(name)
		if err != nil {
			return err
		}
		return renderStdout(c.Record(), func(w io.Writer) {
			fmt.Fprintf(w, "Client:  %s\n", c.Name())
			fmt.Fprintf(w, "Owner:   %s\n", c.Owner())
			fmt.Fprintf(w, "Root:    %s\n", c.Root())
			if c.Stream() != "" {
				fmt.Fprintf(w, "Stream:  %s\n", c.Stream())
			}
			fmt.Fprintf(w, "Update:  %s\n", c.Update().Format(specTimeFormat))
			fmt.Fprintf(w, "Access:  %s\n", c.Access().Format(specTimeFormat))
			if d := c.Description(); d != "" {
				fmt.Fprintf(w, "Description:\n\t%s\n", strings.ReplaceAll(d, "\n", "\n\t"))
			}
			fmt.Fprintln(w, "View:")
			printView(w, c.View())
		})
	},
}

// stream command
var streamCmd = &cobra.Command{
	Use:   "stream [NAME]",
	Short: "Show a stream spec",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		a, err := newApp("Stream")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Stream(name)
		if err != nil {
			return err
		}
		return renderStdout(s.Record(), func(w io.Writer) {
			fmt.Fprintf(w, "Stream:  %s\n", s.Name())
			fmt.Fprintf(w, "Type:    %s\n", s.Type())
			if s.Parent() != "" {
				fmt.Fprintf(w, "Parent:  %s\n", s.Parent())
			}
			fmt.Fprintf(w, "Owner:   %s\n", s.Owner())
			fmt.Fprintf(w, "Update:  %s\n", s.Update().Format(specTimeFormat))
			if d := s.Description(); d != "" {
				fmt.Fprintf(w, "Description:\n\t%s\n", strings.ReplaceAll(d, "\n", "\n\t"))
			}
			fmt.Fprintln(w, "Paths:")
			for _, p := range s.Paths() {
				fmt.Fprintf(w, "  %s\n", p)
			}
			fmt.Fprintln(w, "View:")
			printView(w, s.View())
		})
	},
}

func registerSpecCommands() {
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(streamCmd)
}
