package p4

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Changelist status values as reported by the server.
const (
	ChangePending   = "pending"
	ChangeSubmitted = "submitted"
	ChangeNew       = "new"
)

// DefaultDescription is used when a changelist is created without one.
const DefaultDescription = "<Created by p4go>"

var renumberedRe = regexp.MustCompile(`renamed change (\d+) and submitted`)

// Changelist is a numbered (or the default) group of pending file changes.
// Number 0 is the default changelist.
type Changelist struct {
	conn      *Connection
	number    int
	isDefault bool

	description string
	client      string
	user        string
	status      string
	time        time.Time

	files    []*Revision
	dirty    bool
	reverted bool
	deleted  bool
}

func changeArg(number int) string {
	if number == 0 {
		return "default"
	}
	return strconv.Itoa(number)
}

func newChangelist(conn *Connection, number int, withFiles bool) (*Changelist, error) {
	if number <= 0 {
		return newDefaultChangelist(conn)
	}
	cl := &Changelist{conn: conn, number: number, status: ChangePending}
	if err := cl.Query(withFiles); err != nil {
		return nil, err
	}
	return cl, nil
}

func newDefaultChangelist(conn *Connection) (*Changelist, error) {
	cl := &Changelist{conn: conn, isDefault: true, status: ChangeNew}
	if err := cl.Query(true); err != nil {
		return nil, err
	}
	return cl, nil
}

// CreateChangelist allocates a new pending changelist on the server and
// returns it fully loaded.
func CreateChangelist(conn *Connection, description string) (*Changelist, error) {
	if strings.TrimSpace(description) == "" {
		description = DefaultDescription
	}

	out, err := conn.RunRaw([]byte(formatNewChange(conn.client, description)), "change", "-i")
	if err != nil {
		return nil, err
	}

	// "Change 123 created."
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return nil, fmt.Errorf("unexpected change -i output: %q", string(out))
	}
	number, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("parsing new changelist number from %q: %w", string(out), err)
	}

	return newChangelist(conn, number, true)
}

func (cl *Changelist) String() string {
	return "<Changelist " + strconv.Itoa(cl.number) + ">"
}

// Query refreshes the header from the server and, when withFiles is set,
// reloads the member files.
func (cl *Changelist) Query(withFiles bool) error {
	if cl.isDefault {
		return cl.queryDefault(withFiles)
	}

	records, err := cl.conn.Run("describe", "-s", strconv.Itoa(cl.number))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &ChangelistError{Change: cl.number, Err: errors.New("no such changelist")}
	}
	data := records[0]

	cl.description = data.Value("desc")
	cl.client = data.Value("client")
	cl.user = data.Value("user")
	cl.status = data.Value("status")
	if secs, err := data.Int("time"); err == nil {
		cl.time = time.Unix(int64(secs), 0)
	}

	if !withFiles {
		return nil
	}

	var paths []string
	if cl.status == ChangePending {
		paths, err = cl.openedFiles()
		if err != nil {
			return err
		}
	} else {
		paths = data.Indexed("depotFile")
	}
	return cl.loadFiles(paths)
}

func (cl *Changelist) queryDefault(withFiles bool) error {
	records, err := cl.conn.Run("change", "-o")
	if err != nil {
		return err
	}
	if len(records) > 0 {
		cl.description = records[0].Value("Description")
	}
	cl.client = cl.conn.client
	cl.user = cl.conn.user
	cl.status = ChangeNew

	if !withFiles {
		return nil
	}
	paths, err := cl.openedFiles()
	if err != nil {
		return err
	}
	return cl.loadFiles(paths)
}

func (cl *Changelist) openedFiles() ([]string, error) {
	records, err := cl.conn.Run("opened", "-c", changeArg(cl.number))
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, r := range records {
		if r.IsError() {
			continue
		}
		if p := r.Value("depotFile"); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (cl *Changelist) loadFiles(paths []string) error {
	cl.files = nil
	if len(paths) == 0 {
		return nil
	}
	revs, err := cl.conn.Ls(paths, LsOptions{Strict: true})
	if err != nil {
		return err
	}
	for _, rev := range revs {
		rev.changelist = cl
		cl.files = append(cl.files, rev)
	}
	return nil
}

func (cl *Changelist) checkMutable() error {
	switch {
	case cl.deleted:
		return &ChangelistError{Change: cl.number, Err: ErrDeleted}
	case cl.status == ChangeSubmitted:
		return &ChangelistError{Change: cl.number, Err: ErrSubmitted}
	case cl.reverted:
		return &ChangelistError{Change: cl.number, Err: ErrReverted}
	}
	return nil
}

func (cl *Changelist) index(rev *Revision) int {
	for i, f := range cl.files {
		if f.DepotFile() == rev.DepotFile() {
			return i
		}
	}
	return -1
}

// Contains reports whether a file with the same depot path is a member.
func (cl *Changelist) Contains(rev *Revision) bool {
	return rev != nil && cl.index(rev) >= 0
}

// Append opens rev in this changelist. Appending a member is a no-op.
func (cl *Changelist) Append(rev *Revision) error {
	if rev == nil {
		return ErrTypeMismatch
	}
	if err := cl.checkMutable(); err != nil {
		return err
	}
	if cl.Contains(rev) {
		return nil
	}

	if rev.IsMapped() {
		if err := rev.Edit(cl); err != nil {
			return err
		}
	}

	if prev := rev.changelist; prev != nil && prev != cl {
		if i := prev.index(rev); i >= 0 {
			prev.files = append(prev.files[:i], prev.files[i+1:]...)
			prev.dirty = true
		}
	}
	cl.files = append(cl.files, rev)
	rev.changelist = cl
	cl.dirty = true
	return nil
}

// AppendPath resolves path and appends it, adding the file when the server
// does not know it yet.
func (cl *Changelist) AppendPath(path string) error {
	if err := cl.checkMutable(); err != nil {
		return err
	}
	revs, err := cl.conn.Ls([]string{path}, LsOptions{})
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		_, err := cl.conn.Add(path, cl)
		return err
	}
	return cl.Append(revs[0])
}

// Remove detaches rev from this changelist. Unless permanent, the file is
// moved to the default changelist.
func (cl *Changelist) Remove(rev *Revision, permanent bool) error {
	if rev == nil {
		return ErrTypeMismatch
	}
	i := cl.index(rev)
	if i < 0 {
		return &NotMemberError{Change: cl.number, Path: rev.DepotFile()}
	}
	cl.files = append(cl.files[:i], cl.files[i+1:]...)

	if permanent || cl.isDefault {
		if rev.changelist == cl {
			rev.changelist = nil
		}
		return nil
	}

	def, err := cl.conn.DefaultChangelist()
	if err != nil {
		return err
	}
	return rev.SetChangelist(def)
}

// Revert reverts every member file. A changelist can be reverted only once.
func (cl *Changelist) Revert(unchangedOnly bool) error {
	if cl.reverted {
		return &ChangelistError{Change: cl.number, Err: ErrReverted}
	}

	if paths := cl.paths(); len(paths) > 0 {
		args := []string{"revert"}
		if unchangedOnly {
			args = append(args, "-a")
		}
		args = append(args, "-c", changeArg(cl.number))
		if _, err := cl.conn.RunChunked(args, paths); err != nil {
			return err
		}
	}

	for _, f := range cl.files {
		if f.changelist == cl {
			f.changelist = nil
		}
	}
	cl.files = nil
	cl.reverted = true
	return nil
}

// Save persists the description, client and file list. The default
// changelist is saved by reopening its files into it.
func (cl *Changelist) Save() error {
	if cl.deleted {
		return &ChangelistError{Change: cl.number, Err: ErrDeleted}
	}
	if cl.status == ChangeSubmitted {
		return &ChangelistError{Change: cl.number, Err: ErrSubmitted}
	}

	if cl.isDefault {
		if paths := cl.paths(); len(paths) > 0 {
			if _, err := cl.conn.RunChunked([]string{"reopen", "-c", "default"}, paths); err != nil {
				return err
			}
		}
		cl.dirty = false
		return nil
	}

	if _, err := cl.conn.RunRaw([]byte(cl.Format()), "change", "-i"); err != nil {
		return err
	}
	cl.dirty = false
	return nil
}

// Submit saves pending edits and submits the changelist.
func (cl *Changelist) Submit() error {
	if err := cl.checkMutable(); err != nil {
		return err
	}
	if cl.isDefault {
		return &ChangelistError{Change: 0, Err: errors.New("the default changelist cannot be submitted by number")}
	}
	if cl.dirty {
		if err := cl.Save(); err != nil {
			return err
		}
	}

	out, err := cl.conn.RunRaw(nil, "submit", "-c", strconv.Itoa(cl.number))
	if err != nil {
		return err
	}
	if m := renumberedRe.FindSubmatch(out); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			cl.number = n
		}
	}
	cl.status = ChangeSubmitted
	return nil
}

// Delete reverts the member files and removes the changelist from the server.
func (cl *Changelist) Delete() error {
	if err := cl.Revert(false); err != nil && !errors.Is(err, ErrReverted) {
		return err
	}
	if cl.isDefault {
		return nil
	}
	if _, err := cl.conn.Run("change", "-d", strconv.Itoa(cl.number)); err != nil {
		return err
	}
	cl.deleted = true
	return nil
}

// Batch runs fn and saves the changelist afterwards. A failure of fn is
// returned as a *ChangelistError and nothing is saved.
func (cl *Changelist) Batch(fn func(cl *Changelist) error) error {
	if err := fn(cl); err != nil {
		cl.conn.logger.Debug("changelist batch failed", "change", changeArg(cl.number), "error", err)
		return &ChangelistError{Change: cl.number, Err: err}
	}
	return cl.Save()
}

// Format renders the change form Save submits.
func (cl *Changelist) Format() string {
	change := strconv.Itoa(cl.number)
	if cl.isDefault {
		change = ChangeNew
	}
	return formatChange(change, cl.client, cl.user, cl.status, cl.description, cl.paths())
}

func (cl *Changelist) paths() []string {
	paths := make([]string, len(cl.files))
	for i, f := range cl.files {
		paths[i] = f.DepotFile()
	}
	return paths
}

func (cl *Changelist) Number() int     { return cl.number }
func (cl *Changelist) IsDefault() bool { return cl.isDefault }

// Description returns the description without surrounding whitespace.
func (cl *Changelist) Description() string {
	return strings.TrimSpace(cl.description)
}

func (cl *Changelist) SetDescription(desc string) {
	cl.description = strings.TrimSpace(desc)
	cl.dirty = true
}

// Client is the workspace that owns the changelist.
func (cl *Changelist) Client() string { return cl.client }

func (cl *Changelist) SetClient(client string) {
	cl.client = client
	cl.dirty = true
}

func (cl *Changelist) User() string   { return cl.user }
func (cl *Changelist) Status() string { return cl.status }

// Time is the creation time; zero for the default changelist.
func (cl *Changelist) Time() time.Time { return cl.time }

// IsDirty reports local edits not yet saved.
func (cl *Changelist) IsDirty() bool    { return cl.dirty }
func (cl *Changelist) IsReverted() bool { return cl.reverted }
func (cl *Changelist) IsDeleted() bool  { return cl.deleted }

// Files returns the member revisions in order.
func (cl *Changelist) Files() []*Revision {
	return append([]*Revision(nil), cl.files...)
}

func (cl *Changelist) Len() int { return len(cl.files) }
