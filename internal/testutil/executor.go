package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"p4-go/internal/p4"
)

// Response is what the FakeExecutor answers for a matching command.
type Response struct {
	// Records are encoded as the -G record stream on stdout.
	Records []*p4.Record

	// Stdout is appended after the encoded records; used for raw-mode commands.
	Stdout string

	Stderr string
	Err    error
}

// Call is one recorded invocation.
type Call struct {
	Argv  []string
	Stdin []byte
}

// Subcommand returns the argv after the global p4 flags.
func (c Call) Subcommand() []string {
	return Subcommand(c.Argv)
}

type handler struct {
	prefix string
	resp   Response
	once   bool
	used   bool
}

// FakeExecutor is a scripted p4.Executor. Handlers match the subcommand part
// of argv by string prefix; the most recently registered match wins.
// Unmatched commands answer on stderr.
type FakeExecutor struct {
	mu       sync.Mutex
	handlers []*handler
	calls    []Call
}

// NewFakeExecutor creates an executor with no handlers.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// Handle answers every command whose subcommand line starts with prefix.
func (f *FakeExecutor) Handle(prefix string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, &handler{prefix: prefix, resp: resp})
}

// HandleOnce answers the next matching command only.
func (f *FakeExecutor) HandleOnce(prefix string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, &handler{prefix: prefix, resp: resp, once: true})
}

// Records is shorthand for Handle with a record response.
func (f *FakeExecutor) Records(prefix string, records ...*p4.Record) {
	f.Handle(prefix, Response{Records: records})
}

func (f *FakeExecutor) Execute(argv []string, stdin []byte) (*p4.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{
		Argv:  append([]string(nil), argv...),
		Stdin: append([]byte(nil), stdin...),
	})

	line := strings.Join(Subcommand(argv), " ")
	for i := len(f.handlers) - 1; i >= 0; i-- {
		h := f.handlers[i]
		if h.used || !strings.HasPrefix(line, h.prefix) {
			continue
		}
		if h.once {
			h.used = true
		}
		if h.resp.Err != nil {
			return nil, h.resp.Err
		}
		var out bytes.Buffer
		for _, r := range h.resp.Records {
			if err := p4.WriteRecord(&out, r); err != nil {
				return nil, err
			}
		}
		out.WriteString(h.resp.Stdout)
		return &p4.ExecResult{Stdout: out.Bytes(), Stderr: []byte(h.resp.Stderr)}, nil
	}

	return &p4.ExecResult{
		Stderr:   []byte(fmt.Sprintf("unexpected command: %s", line)),
		ExitCode: 1,
	}, nil
}

// Calls returns every invocation so far.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many invocations had a subcommand line starting with prefix.
func (f *FakeExecutor) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(strings.Join(c.Subcommand(), " "), prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls; handlers are kept.
func (f *FakeExecutor) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Subcommand strips the executable and the global flags (-u, -p, -c, -P, -G)
// from a p4 argument vector.
func Subcommand(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	args := argv[1:]
	for len(args) > 0 {
		switch args[0] {
		case "-u", "-p", "-c", "-P":
			if len(args) < 2 {
				return nil
			}
			args = args[2:]
		case "-G":
			args = args[1:]
		default:
			return args
		}
	}
	return args
}
