package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"p4-go/internal/config"
	"p4-go/internal/journal"
	"p4-go/internal/p4"
	"p4-go/internal/secret"
)

// ErrNoJournal is returned by history queries when the journal is disabled.
var ErrNoJournal = errors.New("journal is disabled (journal.type = \"none\")")

// P4App is the application layer between the CLI and the p4 library.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and closes the journal and log file on Close.
type P4App struct {
	cfg     *config.Config
	conn    *p4.Connection
	journal *journal.Journal
	logger  *slog.Logger
	op      *Operation
	logFile *os.File
}

// Deps overrides the process-level collaborators of a P4App. Zero fields
// get the real implementations.
type Deps struct {
	Executor p4.Executor
	Prompter secret.Prompter
	Stderr   io.Writer
	Clock    p4.Clock
	IDs      journal.IDGenerator
}

// NewP4App creates a fully wired P4App from the given config.
// operation identifies the CLI command being run (e.g. "Edit", "Submit").
// The caller must call Close when done.
func NewP4App(cfg *config.Config, operation string) (*P4App, error) {
	return NewP4AppWithDeps(cfg, operation, Deps{})
}

// NewP4AppWithDeps is NewP4App with injected collaborators.
func NewP4AppWithDeps(cfg *config.Config, operation string, deps Deps) (*P4App, error) {
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Clock == nil {
		deps.Clock = p4.RealClock{}
	}
	if deps.IDs == nil {
		deps.IDs = journal.UUIDGenerator{}
	}

	level := p4.ErrorLevelFailed
	if cfg.Perforce.Level != "" {
		l, err := p4.ParseErrorLevel(cfg.Perforce.Level)
		if err != nil {
			return nil, fmt.Errorf("perforce.level: %w", err)
		}
		level = l
	}

	opID := deps.Clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, deps.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	j, err := journal.NewJournalFromConfig(cfg.Journal, journal.Options{
		IDs:    deps.IDs,
		Clock:  deps.Clock,
		Logger: adapter,
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	if j != nil {
		if err := j.CheckMigrations(); err != nil {
			j.Close()
			logFile.Close()
			return nil, fmt.Errorf("journal schema out of date (run `p4go config migrate`): %w", err)
		}
	}

	a := &P4App{
		cfg:     cfg,
		journal: j,
		logger:  logger,
		op:      NewOperation(operation, ""),
		logFile: logFile,
	}

	password, err := loadPassword(cfg.Perforce.PasswordFile, deps.Prompter)
	if err != nil {
		a.Close()
		return nil, err
	}

	var settings p4.Settings = p4.EnvSettings{}
	if cfg.Perforce.UseP4Set {
		settings = p4.SettingsChain{
			p4.EnvSettings{},
			&p4.CommandSettings{Executable: cfg.Perforce.Executable, Executor: deps.Executor},
		}
	}

	opts := p4.Options{
		Executable: cfg.Perforce.Executable,
		Port:       cfg.Perforce.Port,
		User:       cfg.Perforce.User,
		Client:     cfg.Perforce.Client,
		Password:   password,
		Level:      level,
		Settings:   settings,
		Executor:   deps.Executor,
		Logger:     adapter,
		Clock:      deps.Clock,
	}
	if j != nil {
		opts.Observer = j
	}

	conn, err := p4.NewConnection(opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}
	a.conn = conn

	return a, nil
}

// loadPassword decrypts the configured password file. A missing or
// unconfigured file means no password.
func loadPassword(path string, prompter secret.Prompter) (string, error) {
	if path == "" {
		return "", nil
	}
	store := secret.NewStore(path)
	if !store.IsConfigured() {
		return "", nil
	}
	passphrase, err := secret.Passphrase(prompter)
	if err != nil {
		return "", err
	}
	password, err := store.Load(passphrase)
	if err != nil {
		return "", fmt.Errorf("loading password: %w", err)
	}
	return password, nil
}

// Conn returns the underlying connection.
func (a *P4App) Conn() *p4.Connection { return a.conn }

func (a *P4App) Config() *config.Config { return a.cfg }

// Operation returns the operation this app was created for.
func (a *P4App) Operation() *Operation { return a.op }

// persistOperation saves the operation to the journal, giving it an
// auto-increment ID. This should only be called for mutating commands.
func (a *P4App) persistOperation(parameters string) error {
	if a.journal == nil || a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	id, err := a.journal.BeginOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// mutate persists the operation, runs fn and records its outcome.
func (a *P4App) mutate(parameters string, fn func() error) error {
	if err := a.persistOperation(parameters); err != nil {
		return err
	}
	err := fn()
	a.op.Fail(err)
	if err != nil {
		a.logger.Info("operation failed", "operation", a.op.Operation, "parameters", parameters, "error", err)
	}
	return err
}

// resolvePath makes a local path absolute. Depot syntax and revision
// specifiers pass through untouched.
func resolvePath(raw string) (string, error) {
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "@") || strings.HasPrefix(raw, "#") {
		return raw, nil
	}
	return filepath.Abs(raw)
}

func resolvePaths(raw []string) ([]string, error) {
	out := make([]string, len(raw))
	for i, r := range raw {
		p, err := resolvePath(r)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		out[i] = p
	}
	return out, nil
}

// changelist returns the numbered changelist; 0 selects the default
// changelist and is returned as nil.
func (a *P4App) changelist(number int) (*p4.Changelist, error) {
	if number == 0 {
		return nil, nil
	}
	cl, err := a.conn.Changelist(number)
	if err != nil {
		return nil, fmt.Errorf("loading changelist %d: %w", number, err)
	}
	return cl, nil
}

// Status reports whether the server is reachable and the session usable.
func (a *P4App) Status() p4.ConnectionStatus {
	return a.conn.Status()
}

// Ls resolves the given paths and returns their revisions.
func (a *P4App) Ls(rawPaths []string, opts p4.LsOptions) ([]*p4.Revision, error) {
	paths, err := resolvePaths(rawPaths)
	if err != nil {
		return nil, err
	}
	return a.conn.Ls(paths, opts)
}

// Add opens each file for add in the given changelist (0 for default).
func (a *P4App) Add(rawPaths []string, change int) ([]*p4.Revision, error) {
	paths, err := resolvePaths(rawPaths)
	if err != nil {
		return nil, err
	}

	var revs []*p4.Revision
	err = a.mutate(strings.Join(paths, " "), func() error {
		cl, err := a.changelist(change)
		if err != nil {
			return err
		}
		for _, p := range paths {
			rev, err := a.conn.Add(p, cl)
			if err != nil {
				return err
			}
			a.logger.Info("opened for add", "path", rev.DepotFile())
			revs = append(revs, rev)
		}
		return nil
	})
	return revs, err
}

// eachRevision resolves rawPaths to revisions and applies fn to each one.
func (a *P4App) eachRevision(rawPaths []string, fn func(rev *p4.Revision) error) ([]*p4.Revision, error) {
	paths, err := resolvePaths(rawPaths)
	if err != nil {
		return nil, err
	}

	var revs []*p4.Revision
	err = a.mutate(strings.Join(paths, " "), func() error {
		found, err := a.conn.Ls(paths, p4.LsOptions{Strict: true})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return &p4.RevisionError{Path: strings.Join(paths, " "), Message: "no such file(s)"}
		}
		for _, rev := range found {
			if err := fn(rev); err != nil {
				return err
			}
			revs = append(revs, rev)
		}
		return nil
	})
	return revs, err
}

// Edit opens each file for edit in the given changelist (0 for default).
func (a *P4App) Edit(rawPaths []string, change int) ([]*p4.Revision, error) {
	return a.inChangelist(rawPaths, change, (*p4.Revision).Edit)
}

// Lock locks each opened file.
func (a *P4App) Lock(rawPaths []string, change int) ([]*p4.Revision, error) {
	return a.inChangelist(rawPaths, change, (*p4.Revision).Lock)
}

// Unlock releases locks taken with Lock.
func (a *P4App) Unlock(rawPaths []string, change int) ([]*p4.Revision, error) {
	return a.inChangelist(rawPaths, change, (*p4.Revision).Unlock)
}

// Delete opens each file for delete.
func (a *P4App) Delete(rawPaths []string, change int) ([]*p4.Revision, error) {
	return a.inChangelist(rawPaths, change, (*p4.Revision).Delete)
}

// Shelve shelves each opened file into the given changelist, or into the
// changelist it is open in when change is 0.
func (a *P4App) Shelve(rawPaths []string, change int) ([]*p4.Revision, error) {
	return a.inChangelist(rawPaths, change, (*p4.Revision).Shelve)
}

func (a *P4App) inChangelist(rawPaths []string, change int, fn func(*p4.Revision, *p4.Changelist) error) ([]*p4.Revision, error) {
	var cl *p4.Changelist
	loaded := false
	return a.eachRevision(rawPaths, func(rev *p4.Revision) error {
		if !loaded {
			var err error
			if cl, err = a.changelist(change); err != nil {
				return err
			}
			loaded = true
		}
		return fn(rev, cl)
	})
}

// Revert discards the opened state of each file.
func (a *P4App) Revert(rawPaths []string, unchangedOnly bool) ([]*p4.Revision, error) {
	return a.eachRevision(rawPaths, func(rev *p4.Revision) error {
		return rev.Revert(unchangedOnly)
	})
}

// Sync brings each file to the requested revision.
func (a *P4App) Sync(rawPaths []string, opts p4.SyncOptions) ([]*p4.Revision, error) {
	return a.eachRevision(rawPaths, func(rev *p4.Revision) error {
		return rev.Sync(opts)
	})
}

// Move renames src to dest.
func (a *P4App) Move(rawSrc, rawDest string, change int, force bool) (*p4.Revision, error) {
	if strings.Contains(rawSrc, "...") || strings.ContainsAny(rawSrc, "*%") {
		return nil, &p4.RevisionError{Path: rawSrc, Message: "move needs exactly one source file"}
	}
	dest, err := resolvePath(rawDest)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	revs, err := a.inChangelist([]string{rawSrc}, change, func(rev *p4.Revision, cl *p4.Changelist) error {
		return rev.Move(dest, cl, force)
	})
	if err != nil {
		return nil, err
	}
	if len(revs) != 1 {
		return nil, &p4.RevisionError{Path: rawSrc, Message: "move needs exactly one source file"}
	}
	return revs[0], nil
}

// Changelist loads a changelist with its files; 0 selects the default one.
func (a *P4App) Changelist(number int) (*p4.Changelist, error) {
	if number == 0 {
		return a.conn.DefaultChangelist()
	}
	return a.conn.Changelist(number)
}

// FindChangelist returns the pending changelist with the given description,
// creating it when none exists.
func (a *P4App) FindChangelist(description string) (*p4.Changelist, error) {
	var cl *p4.Changelist
	err := a.mutate(description, func() error {
		var err error
		cl, err = a.conn.FindChangelist(description)
		return err
	})
	return cl, err
}

// SubmitChangelist submits a numbered changelist and returns it with its
// final number.
func (a *P4App) SubmitChangelist(number int) (*p4.Changelist, error) {
	return a.withChangelist(number, func(cl *p4.Changelist) error {
		if err := cl.Submit(); err != nil {
			return err
		}
		a.logger.Info("submitted", "change", cl.Number(), "files", cl.Len())
		return nil
	})
}

// RevertChangelist reverts the files of a changelist.
func (a *P4App) RevertChangelist(number int, unchangedOnly bool) (*p4.Changelist, error) {
	return a.withChangelist(number, func(cl *p4.Changelist) error {
		return cl.Revert(unchangedOnly)
	})
}

// DeleteChangelist reverts the files of a changelist and deletes it.
func (a *P4App) DeleteChangelist(number int) (*p4.Changelist, error) {
	return a.withChangelist(number, func(cl *p4.Changelist) error {
		return cl.Delete()
	})
}

// EditChangelist replaces the description of a changelist and saves it.
func (a *P4App) EditChangelist(number int, description string) (*p4.Changelist, error) {
	return a.withChangelist(number, func(cl *p4.Changelist) error {
		return cl.Batch(func(cl *p4.Changelist) error {
			cl.SetDescription(description)
			return nil
		})
	})
}

func (a *P4App) withChangelist(number int, fn func(cl *p4.Changelist) error) (*p4.Changelist, error) {
	var cl *p4.Changelist
	err := a.mutate(strconv.Itoa(number), func() error {
		var err error
		if cl, err = a.Changelist(number); err != nil {
			return err
		}
		return fn(cl)
	})
	return cl, err
}

// Client returns a client spec; an empty name selects the current client.
func (a *P4App) Client(name string) (*p4.Client, error) {
	return a.conn.Client(name)
}

// Stream returns a stream spec; an empty name selects the client's stream.
func (a *P4App) Stream(name string) (*p4.Stream, error) {
	return a.conn.Stream(name)
}

// Run executes an arbitrary p4 command in marshal mode.
func (a *P4App) Run(args []string) ([]*p4.Record, error) {
	var records []*p4.Record
	err := a.mutate(strings.Join(args, " "), func() error {
		var err error
		records, err = a.conn.Run(args...)
		return err
	})
	return records, err
}

// RunRaw executes an arbitrary p4 command and returns its plain stdout.
func (a *P4App) RunRaw(args []string) ([]byte, error) {
	var out []byte
	err := a.mutate(strings.Join(args, " "), func() error {
		var err error
		out, err = a.conn.RunRaw(nil, args...)
		return err
	})
	return out, err
}

// History returns the most recent journaled invocations.
func (a *P4App) History(limit int) ([]*journal.Entry, error) {
	if a.journal == nil {
		return nil, ErrNoJournal
	}
	return a.journal.List(limit)
}

// Operations returns the most recent journaled operations.
func (a *P4App) Operations(limit int) ([]*journal.Operation, error) {
	if a.journal == nil {
		return nil, ErrNoJournal
	}
	return a.journal.ListOperations(limit)
}

// OperationInvocations returns the invocations issued by one operation.
func (a *P4App) OperationInvocations(id int64) ([]*journal.Entry, error) {
	if a.journal == nil {
		return nil, ErrNoJournal
	}
	return a.journal.Invocations(id)
}

// Close finalizes the operation and closes all resources.
func (a *P4App) Close() error {
	var firstErr error

	if a.journal != nil {
		if a.op.Persisted() {
			if err := a.journal.FinishOperation(a.op.Status); err != nil {
				firstErr = fmt.Errorf("finishing operation: %w", err)
			}
		}
		if err := a.journal.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
		a.journal = nil
	}

	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}

	return firstErr
}
