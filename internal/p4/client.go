package p4

import (
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// specTimeLayout is the format of Access/Update fields in client and stream specs.
const specTimeLayout = "2006/01/02 15:04:05"

// ViewMapping is one line of a workspace or stream view.
type ViewMapping struct {
	Depot  string
	Client string
}

// parseView splits each view line on whitespace; paths containing spaces
// are double-quoted by the server.
func parseView(lines []string) ([]ViewMapping, error) {
	view := make([]ViewMapping, 0, len(lines))
	for _, line := range lines {
		fields, err := shellquote.Split(line)
		if err != nil {
			return nil, fmt.Errorf("parsing view line %q: %w", line, err)
		}
		if len(fields) < 2 {
			continue
		}
		view = append(view, ViewMapping{Depot: fields[0], Client: fields[1]})
	}
	return view, nil
}

func parseSpecTime(v string) time.Time {
	t, err := time.ParseInLocation(specTimeLayout, v, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// specRecord fetches a single spec record with `p4 <kind> -o ...`.
func (c *Connection) specRecord(kind string, args ...string) (*Record, error) {
	records, err := c.Run(append([]string{kind, "-o"}, args...)...)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if !r.IsError() {
			return r, nil
		}
	}
	return nil, fmt.Errorf("p4 %s -o %s: no spec returned", kind, strings.Join(args, " "))
}

// Client is a read-only snapshot of a workspace definition.
type Client struct {
	rec  *Record
	view []ViewMapping
}

// Client fetches the named workspace spec; an empty name selects the
// connection's current client.
func (c *Connection) Client(name string) (*Client, error) {
	var args []string
	if name != "" {
		args = append(args, name)
	}
	rec, err := c.specRecord("client", args...)
	if err != nil {
		return nil, err
	}
	view, err := parseView(rec.Indexed("View"))
	if err != nil {
		return nil, err
	}
	return &Client{rec: rec, view: view}, nil
}

func (cl *Client) String() string { return "<Client " + cl.Name() + ">" }

func (cl *Client) Name() string        { return cl.rec.Value("Client") }
func (cl *Client) Root() string        { return cl.rec.Value("Root") }
func (cl *Client) Owner() string       { return cl.rec.Value("Owner") }
func (cl *Client) Host() string        { return cl.rec.Value("Host") }
func (cl *Client) Description() string { return strings.TrimSpace(cl.rec.Value("Description")) }
func (cl *Client) Options() string     { return cl.rec.Value("Options") }

// Stream is the stream the workspace is bound to, empty for classic clients.
func (cl *Client) Stream() string { return cl.rec.Value("Stream") }

func (cl *Client) Access() time.Time { return parseSpecTime(cl.rec.Value("Access")) }
func (cl *Client) Update() time.Time { return parseSpecTime(cl.rec.Value("Update")) }

// View returns the depot to client mappings in order.
func (cl *Client) View() []ViewMapping { return append([]ViewMapping(nil), cl.view...) }

func (cl *Client) Field(name string) (string, error) { return cl.rec.Field(name) }

// Record returns a copy of the raw spec record.
func (cl *Client) Record() *Record { return cl.rec.Clone() }

// Stream is a read-only snapshot of a stream definition.
type Stream struct {
	rec  *Record
	view []ViewMapping
}

// Stream fetches the named stream spec including its generated view.
func (c *Connection) Stream(name string) (*Stream, error) {
	rec, err := c.specRecord("stream", "-v", name)
	if err != nil {
		return nil, err
	}
	view, err := parseView(rec.Indexed("View"))
	if err != nil {
		return nil, err
	}
	return &Stream{rec: rec, view: view}, nil
}

func (s *Stream) String() string { return "<Stream " + s.Name() + ">" }

func (s *Stream) Name() string        { return s.rec.Value("Stream") }
func (s *Stream) Type() string        { return s.rec.Value("Type") }
func (s *Stream) Owner() string       { return s.rec.Value("Owner") }
func (s *Stream) Description() string { return strings.TrimSpace(s.rec.Value("Description")) }
func (s *Stream) Options() string     { return s.rec.Value("Options") }

// Parent is the parent stream; empty for mainline streams.
func (s *Stream) Parent() string {
	if p := s.rec.Value("Parent"); p != "none" {
		return p
	}
	return ""
}

// Paths returns the stream's path lines (share, isolate, import, ...).
func (s *Stream) Paths() []string { return s.rec.Indexed("Paths") }

func (s *Stream) Access() time.Time { return parseSpecTime(s.rec.Value("Access")) }
func (s *Stream) Update() time.Time { return parseSpecTime(s.rec.Value("Update")) }

// View returns the stream's generated depot to client mappings.
func (s *Stream) View() []ViewMapping { return append([]ViewMapping(nil), s.view...) }

func (s *Stream) Field(name string) (string, error) { return s.rec.Field(name) }

func (s *Stream) Record() *Record { return s.rec.Clone() }
