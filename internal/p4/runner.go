package p4

import (
	"bytes"
	"errors"
	"io"
	"time"
)

// MaxArgsLength bounds the cumulative length of file arguments passed to a
// single invocation. Longer file lists are split across invocations.
const MaxArgsLength = 8000

const redacted = "********"

// Invocation describes one finished p4 process, as reported to an Observer.
type Invocation struct {
	Command  []string
	Started  time.Time
	Finished time.Time
	Err      error
}

// Observer is notified after every p4 invocation.
type Observer interface {
	CommandFinished(inv Invocation)
}

// command is a single request to the runner.
type command struct {
	args    []string
	stdin   []byte
	marshal bool
}

// argv builds the full argument vector for cmd.
func (c *Connection) argv(cmd command) []string {
	argv := []string{c.executable, "-u", c.user, "-p", c.port}
	if c.client != "" {
		argv = append(argv, "-c", c.client)
	}
	if c.password != "" {
		argv = append(argv, "-P", c.password)
	}
	if cmd.marshal {
		argv = append(argv, "-G")
	}
	return append(argv, cmd.args...)
}

// redact replaces the password argument so argv can be logged.
func (c *Connection) redact(argv []string) []string {
	out := append([]string(nil), argv...)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "-P" && c.password != "" && out[i+1] == c.password {
			out[i+1] = redacted
		}
	}
	return out
}

// execute runs cmd and returns decoded records (marshal mode) or raw stdout.
func (c *Connection) execute(cmd command) ([]*Record, []byte, error) {
	argv := c.argv(cmd)
	shown := c.redact(argv)

	c.logger.Debug("running p4", "args", shown)
	started := c.clock.Now()

	records, raw, err := c.spawn(argv, shown, cmd)

	if c.observer != nil {
		c.observer.CommandFinished(Invocation{
			Command:  shown,
			Started:  started,
			Finished: c.clock.Now(),
			Err:      err,
		})
	}
	if err != nil {
		c.logger.Debug("p4 failed", "args", shown, "error", err)
		return nil, nil, err
	}
	return records, raw, nil
}

func (c *Connection) spawn(argv, shown []string, cmd command) ([]*Record, []byte, error) {
	res, err := c.executor.Execute(argv, cmd.stdin)
	if err != nil {
		return nil, nil, &CommandError{Message: err.Error(), Command: shown}
	}

	var records []*Record
	if cmd.marshal {
		records, err = decodeAll(bytes.NewReader(res.Stdout), c.level, shown)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(res.Stderr) > 0 {
		return nil, nil, &CommandError{Message: string(res.Stderr), Command: shown}
	}

	if cmd.marshal {
		return records, nil, nil
	}
	return nil, res.Stdout, nil
}

// decodeAll decodes every record of stream. An error record at or above
// level aborts decoding; no records are returned in that case.
func decodeAll(stream io.Reader, level ErrorLevel, command []string) ([]*Record, error) {
	dec := NewDecoder(stream)
	var records []*Record
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, &CommandError{Message: err.Error(), Command: command}
		}
		if rec.IsError() && rec.Severity() >= level {
			return nil, &CommandError{Message: rec.Value("data"), Record: rec, Command: command}
		}
		records = append(records, rec)
	}
}

// chunkArgs splits files so that the cumulative length of each chunk stays
// within limit. An argument longer than limit forms a chunk of its own.
func chunkArgs(files []string, limit int) [][]string {
	var chunks [][]string
	var current []string
	size := 0
	for _, f := range files {
		if len(current) > 0 && size+len(f) > limit {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, f)
		size += len(f)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// Run executes a p4 subcommand in marshal mode and returns its records.
func (c *Connection) Run(args ...string) ([]*Record, error) {
	records, _, err := c.execute(command{args: args, marshal: true})
	return records, err
}

// RunInput executes a p4 subcommand in marshal mode with stdin attached.
func (c *Connection) RunInput(stdin []byte, args ...string) ([]*Record, error) {
	records, _, err := c.execute(command{args: args, stdin: stdin, marshal: true})
	return records, err
}

// RunRaw executes a p4 subcommand without -G and returns its standard output.
// stdin may be nil.
func (c *Connection) RunRaw(stdin []byte, args ...string) ([]byte, error) {
	_, raw, err := c.execute(command{args: args, stdin: stdin})
	return raw, err
}

// RunChunked runs args followed by files, splitting files across as many
// invocations as MaxArgsLength requires. Records are concatenated in input order.
func (c *Connection) RunChunked(args []string, files []string) ([]*Record, error) {
	var all []*Record
	for _, chunk := range chunkArgs(files, MaxArgsLength) {
		full := append(append([]string(nil), args...), chunk...)
		records, err := c.Run(full...)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}
