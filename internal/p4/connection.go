// Package p4 drives the Perforce command-line client. Every operation spawns
// the p4 executable, decodes its -G record stream and maps the records onto
// Changelist, Revision, Client and Stream values.
package p4

import (
	"errors"
	"strconv"
	"strings"
)

// ConnectionStatus is the result of probing the server with Connection.Status.
type ConnectionStatus int

const (
	StatusOK ConnectionStatus = iota
	StatusOffline
	StatusNoAuth
	StatusInvalidClient
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOffline:
		return "offline"
	case StatusNoAuth:
		return "not authenticated"
	case StatusInvalidClient:
		return "invalid client"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Options configures a Connection. Empty Port, User and Client are resolved
// through Settings.
type Options struct {
	// Executable is the p4 binary; defaults to "p4".
	Executable string
	Port       string
	User       string
	Client     string
	Password   string

	// Level is the minimum severity of an error record that fails a command.
	// The zero value selects ErrorLevelFailed.
	Level ErrorLevel

	// Settings resolves unset parameters; defaults to EnvSettings.
	Settings Settings
	Executor Executor
	Logger   Logger
	Observer Observer
	Clock    Clock
}

// Connection holds the identity used for every p4 invocation. It is shared by
// all entities it produces and is not safe for concurrent mutation.
type Connection struct {
	executable string
	port       string
	client     string
	user       string
	password   string
	level      ErrorLevel

	executor Executor
	logger   Logger
	observer Observer
	clock    Clock
}

// NewConnection resolves the connection parameters and returns a
// *ConnectionError when no port or user can be found.
func NewConnection(opts Options) (*Connection, error) {
	settings := opts.Settings
	if settings == nil {
		settings = EnvSettings{}
	}

	c := &Connection{
		executable: opts.Executable,
		port:       resolve(opts.Port, settings, "P4PORT"),
		user:       resolve(opts.User, settings, "P4USER"),
		client:     resolve(opts.Client, settings, "P4CLIENT"),
		password:   opts.Password,
		level:      opts.Level,
		executor:   opts.Executor,
		logger:     opts.Logger,
		observer:   opts.Observer,
		clock:      opts.Clock,
	}

	if c.port == "" {
		return nil, &ConnectionError{Message: "perforce host could not be found, set P4PORT or provide the host and port"}
	}
	if c.user == "" {
		return nil, &ConnectionError{Message: "no user could be found, set P4USER or provide the user"}
	}

	if c.executable == "" {
		c.executable = "p4"
	}
	if c.level == ErrorLevelEmpty {
		c.level = ErrorLevelFailed
	}
	if c.executor == nil {
		c.executor = &OSExecutor{}
	}
	if c.logger == nil {
		c.logger = NewNopLogger()
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}

	return c, nil
}

func resolve(explicit string, settings Settings, name string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := settings.Lookup(name); ok {
		return v
	}
	return ""
}

func (c *Connection) String() string {
	return "<Connection: " + c.port + ", " + c.client + ", " + c.user + ">"
}

func (c *Connection) Executable() string { return c.executable }
func (c *Connection) Port() string       { return c.port }
func (c *Connection) User() string       { return c.user }

// ClientName is the bound workspace; empty means commands are not scoped to one.
func (c *Connection) ClientName() string { return c.client }

// SetClient rebinds the connection to another workspace.
func (c *Connection) SetClient(name string) { c.client = name }

// Level is the current error severity threshold.
func (c *Connection) Level() ErrorLevel { return c.level }

func (c *Connection) SetLevel(level ErrorLevel) { c.level = level }

// Status probes the server and the workspace binding.
func (c *Connection) Status() ConnectionStatus {
	info, err := c.Run("info")
	if err == nil {
		if len(info) > 0 && info[0].Value("clientName") == "*unknown*" {
			return StatusInvalidClient
		}
		// Triggers an authentication error when not logged in.
		_, err = c.Run("user", "-o")
	}
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "password (P4PASSWD) invalid or unset"):
			return StatusNoAuth
		case strings.Contains(msg, "Connect to server failed"):
			return StatusOffline
		}
	}
	return StatusOK
}

// LsOptions controls Connection.Ls.
type LsOptions struct {
	// Strict returns failures instead of an empty result.
	Strict bool

	// ExcludeDeleted skips files whose head revision is a delete.
	ExcludeDeleted bool
}

// Ls returns the status of the given file specs.
func (c *Connection) Ls(files []string, opts LsOptions) ([]*Revision, error) {
	args := []string{"fstat"}
	if opts.ExcludeDeleted {
		args = append(args, "-F", "^headAction=delete & ^headAction=move/delete")
	}

	records, err := c.RunChunked(args, files)
	if err != nil {
		var cmdErr *CommandError
		switch {
		case !opts.Strict:
			c.logger.Debug("ls failed", "files", files, "error", err)
			return nil, nil
		case errors.As(err, &cmdErr) && strings.Contains(cmdErr.Message, "is not under client's root"):
			return nil, &RevisionError{Message: strings.TrimSpace(cmdErr.Message), Err: err}
		default:
			return nil, err
		}
	}

	revs := make([]*Revision, 0, len(records))
	for _, r := range records {
		if r.IsError() {
			continue
		}
		revs = append(revs, newRevision(c, r))
	}
	return revs, nil
}

// CanAdd reports whether filename can be added under the current client.
// Failures are logged, never returned.
func (c *Connection) CanAdd(filename string) bool {
	records, err := c.Run("add", "-n", filename)
	if err != nil {
		c.logger.Warn("unable to add", "file", filename, "error", err)
		return false
	}
	if len(records) == 0 {
		c.logger.Warn("unable to add", "file", filename, "error", "no output")
		return false
	}

	code := records[0].Value("code")
	if code != "error" && code != "info" {
		return true
	}

	c.logger.Warn("unable to add", "file", filename, "error", strings.TrimSpace(records[0].Value("data")))
	return false
}

// Add opens filename for add, optionally in change, and returns its revision.
func (c *Connection) Add(filename string, change *Changelist) (*Revision, error) {
	if !c.CanAdd(filename) {
		return nil, &RevisionError{Path: filename, Message: "file cannot be added"}
	}

	args := []string{"add"}
	if change != nil && !change.IsDefault() {
		args = append(args, "-c", strconv.Itoa(change.Number()))
	}
	if _, err := c.Run(append(args, filename)...); err != nil {
		return nil, &RevisionError{Path: filename, Message: "file is not under client path", Err: err}
	}

	records, err := c.Run("fstat", filename)
	if err != nil {
		return nil, &RevisionError{Path: filename, Message: "file is not under client path", Err: err}
	}
	if len(records) == 0 {
		return nil, &RevisionError{Path: filename, Message: "no status after add"}
	}

	rev := newRevision(c, records[0])
	if change != nil {
		if err := change.Append(rev); err != nil {
			return nil, err
		}
	}
	return rev, nil
}

// DefaultChangelist returns the client's default changelist.
func (c *Connection) DefaultChangelist() (*Changelist, error) {
	return newDefaultChangelist(c)
}

// Changelist materializes a numbered changelist with its files.
func (c *Connection) Changelist(number int) (*Changelist, error) {
	return newChangelist(c, number, true)
}

// FindChangelist returns the pending changelist of the current client and user
// whose description matches, creating and saving one when none does.
// An empty description selects the default changelist.
func (c *Connection) FindChangelist(description string) (*Changelist, error) {
	want := strings.TrimSpace(description)
	if want == "" {
		return c.DefaultChangelist()
	}

	args := []string{"changes", "-l", "-s", "pending", "-u", c.user}
	if c.client != "" {
		args = append(args, "-c", c.client)
	}
	pending, err := c.Run(args...)
	if err != nil {
		return nil, err
	}

	for _, r := range pending {
		if strings.TrimSpace(r.Value("desc")) != want {
			continue
		}
		number, err := r.Int("change")
		if err != nil {
			return nil, err
		}
		c.logger.Debug("changelist found", "change", number)
		return c.Changelist(number)
	}

	c.logger.Debug("no changelist found, creating one", "description", want)
	change, err := CreateChangelist(c, description)
	if err != nil {
		return nil, err
	}
	if c.client != "" {
		change.SetClient(c.client)
	}
	if err := change.Save(); err != nil {
		return nil, err
	}
	return change, nil
}
