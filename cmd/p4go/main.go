package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"p4-go/internal/app"
	"p4-go/internal/config"
	"p4-go/internal/journal"
	"p4-go/internal/p4"
	"p4-go/internal/secret"

	"github.com/spf13/cobra"
)

var outputFormat string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a P4App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Edit", "Submit").
func newApp(operation string) (*app.P4App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewP4AppWithDeps(cfg, operation, app.Deps{Prompter: secret.NewTerminalPrompter()})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// migrateJournal applies pending journal migrations for cfg.
func migrateJournal(cfg *config.Config) error {
	j, err := journal.NewJournalFromConfig(cfg.Journal, journal.Options{})
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if j == nil {
		return nil
	}
	defer j.Close()

	if err := j.Migrate(); err != nil {
		return fmt.Errorf("migrating journal: %w", err)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "p4go",
	Short:        "Perforce command-line helper",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.Perforce.Port, _ = cmd.Flags().GetString("port")
		cfg.Perforce.User, _ = cmd.Flags().GetString("user")
		cfg.Perforce.Client, _ = cmd.Flags().GetString("client")
		cfg.Perforce.UseP4Set, _ = cmd.Flags().GetBool("use-p4-set")

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := migrateJournal(cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		return renderStdout(cfg, func(w io.Writer) {
			fmt.Fprintf(w, "Configuration from %s:\n\n", defaults["config_path"])
			fmt.Fprintf(w, "Base Dir:      %s\n", cfg.BaseDir)
			fmt.Fprintf(w, "Log Dir:       %s\n", cfg.LogDir)
			fmt.Fprintf(w, "Port:          %s\n", cfg.Perforce.Port)
			fmt.Fprintf(w, "User:          %s\n", cfg.Perforce.User)
			fmt.Fprintf(w, "Client:        %s\n", cfg.Perforce.Client)
			fmt.Fprintf(w, "Level:         %s\n", cfg.Perforce.Level)
			fmt.Fprintf(w, "Use p4 set:    %t\n", cfg.Perforce.UseP4Set)
			fmt.Fprintf(w, "Password file: %s\n", cfg.Perforce.PasswordFile)
			fmt.Fprintf(w, "Journal:       %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		})
	},
}

var configMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply journal schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := migrateJournal(cfg); err != nil {
			return err
		}
		fmt.Println("Journal schema is up to date.")
		return nil
	},
}

var configPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Store the P4 password encrypted with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		path := cfg.Perforce.PasswordFile
		if path == "" {
			path = defaults["password_file"]
		}

		prompter := secret.NewTerminalPrompter()
		password, err := prompter.Prompt("P4 password")
		if err != nil {
			return err
		}
		passphrase, err := secret.NewPassphrase(prompter)
		if err != nil {
			return err
		}
		if err := secret.NewStore(path).Save(password, passphrase); err != nil {
			return fmt.Errorf("saving password: %w", err)
		}

		if cfg.Perforce.PasswordFile != path {
			cfg.Perforce.PasswordFile = path
			if err := config.WriteToFile(defaults["config_path"], cfg); err != nil {
				return fmt.Errorf("updating config: %w", err)
			}
		}

		fmt.Printf("Password stored in %s\n", path)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the server connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		status := a.Status()
		conn := a.Conn()
		view := map[string]string{
			"port":   conn.Port(),
			"user":   conn.User(),
			"client": conn.ClientName(),
			"status": status.String(),
		}
		if err := renderStdout(view, func(w io.Writer) {
			fmt.Fprintf(w, "%s  %s\n", conn, status)
		}); err != nil {
			return err
		}
		if status != p4.StatusOK {
			return fmt.Errorf("connection status: %s", status)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [OPERATION_ID]",
	Short: "View recorded p4 invocations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		operations, _ := cmd.Flags().GetBool("operations")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		if operations {
			ops, err := a.Operations(limit)
			if err != nil {
				return err
			}
			views := newOperationViews(ops)
			return renderStdout(views, func(w io.Writer) { printOperations(w, views) })
		}

		var entries []*journal.Entry
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid operation id %q", args[0])
			}
			entries, err = a.OperationInvocations(id)
			if err != nil {
				return err
			}
		} else {
			entries, err = a.History(limit)
			if err != nil {
				return err
			}
		}
		views := newEntryViews(entries)
		return renderStdout(views, func(w io.Writer) { printEntries(w, views) })
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run -- COMMAND [ARGS...]",
	Short: "Run an arbitrary p4 command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		a, err := newApp("Run")
		if err != nil {
			return err
		}
		defer a.Close()

		if raw {
			out, err := a.RunRaw(args)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		}

		records, err := a.Run(args)
		if err != nil {
			return err
		}
		return renderStdout(records, func(w io.Writer) {
			for i, r := range records {
				if i > 0 {
					fmt.Fprintln(w)
				}
				for _, k := range r.Keys() {
					fmt.Fprintf(w, "%s: %s\n", k, r.Value(k))
				}
			}
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "Output format: text, json or yaml")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("port", "", "P4PORT to store in the config")
	configInitCmd.Flags().String("user", "", "P4USER to store in the config")
	configInitCmd.Flags().String("client", "", "P4CLIENT to store in the config")
	configInitCmd.Flags().Bool("use-p4-set", false, "Resolve unset values through `p4 set`")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configMigrateCmd)
	configCmd.AddCommand(configPasswordCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().Bool("operations", false, "List operations instead of invocations")
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("raw", false, "Print plain output instead of decoded records")

	registerFileCommands()
	registerChangeCommands()
	registerSpecCommands()
}
