package p4

import (
	"errors"
	"strconv"
	"strings"
)

// Revision is a file as seen by fstat: its depot and client paths, the
// revision synced to the workspace, and what the workspace has it open for.
// Every mutating method re-queries the server before returning.
type Revision struct {
	conn *Connection
	rec  *Record
	head *HeadRevision

	// changelist is the changelist this revision last joined; it does not own it.
	changelist *Changelist
}

func newRevision(conn *Connection, rec *Record) *Revision {
	return &Revision{conn: conn, rec: rec, head: newHeadRevision(rec)}
}

// NewRevision loads the current state of depotPath.
func NewRevision(conn *Connection, depotPath string) (*Revision, error) {
	r := &Revision{conn: conn, rec: RecordOf("depotFile", depotPath)}
	if err := r.Query(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Revision) String() string {
	return r.DepotFile()
}

// Query re-runs fstat for this file and replaces the cached fields.
func (r *Revision) Query() error {
	return r.fstat("-m", "1")
}

func (r *Revision) fstat(flags ...string) error {
	args := append([]string{"fstat"}, flags...)
	records, err := r.conn.Run(append(args, r.DepotFile())...)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &RevisionError{Path: r.DepotFile(), Message: "no such file"}
	}
	if records[0].IsError() {
		return &RevisionError{Path: r.DepotFile(), Message: strings.TrimSpace(records[0].Value("data"))}
	}
	r.rec = records[0]
	r.head = newHeadRevision(r.rec)
	return nil
}

func withChange(args []string, cl *Changelist) []string {
	if cl == nil {
		return args
	}
	return append(args, "-c", changeArg(cl.number))
}

// Edit opens the file for edit. A file already open for add or edit is
// reopened instead, into cl when one is given.
func (r *Revision) Edit(cl *Changelist) error {
	action := r.Action()
	if action == "add" || action == "edit" {
		if _, err := r.conn.Run(append(withChange([]string{"reopen"}, cl), r.DepotFile())...); err != nil {
			return err
		}
		return r.Query()
	}

	if _, err := r.conn.Run(append(withChange([]string{"edit"}, cl), r.DepotFile())...); err != nil {
		return err
	}
	return r.Query()
}

// Lock locks the opened file, optionally in cl.
func (r *Revision) Lock(cl *Changelist) error {
	return r.simple("lock", cl)
}

// Unlock releases a lock taken with Lock.
func (r *Revision) Unlock(cl *Changelist) error {
	return r.simple("unlock", cl)
}

// Delete opens the file for delete, optionally in cl.
func (r *Revision) Delete(cl *Changelist) error {
	return r.simple("delete", cl)
}

func (r *Revision) simple(op string, cl *Changelist) error {
	if _, err := r.conn.Run(append(withChange([]string{op}, cl), r.DepotFile())...); err != nil {
		return err
	}
	return r.Query()
}

// SyncOptions controls Revision.Sync.
type SyncOptions struct {
	// Force resyncs even when the workspace already has the revision.
	Force bool

	// Safe refuses to overwrite files changed outside of Perforce.
	Safe bool

	// Revision syncs a specific revision; 0 means head.
	Revision int
}

// Sync brings the workspace file to the requested revision.
func (r *Revision) Sync(opts SyncOptions) error {
	args := []string{"sync"}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.Safe {
		args = append(args, "-s")
	}
	spec := r.DepotFile()
	if opts.Revision > 0 {
		spec += "#" + strconv.Itoa(opts.Revision)
	}
	if _, err := r.conn.Run(append(args, spec)...); err != nil {
		return err
	}
	return r.Query()
}

// Revert discards the opened state of the file. With unchangedOnly, only an
// unmodified file is reverted.
func (r *Revision) Revert(unchangedOnly bool) error {
	args := []string{"revert"}
	if unchangedOnly {
		args = append(args, "-a")
	}
	wasAdd := r.Action() == "add"

	if _, err := r.conn.Run(append(args, r.DepotFile())...); err != nil {
		return err
	}

	// A reverted add no longer exists on the server. revert -a never
	// reverts an add, so the file is queried to confirm.
	if !wasAdd || unchangedOnly {
		err := r.Query()
		var revErr *RevisionError
		switch {
		case wasAdd && errors.As(err, &revErr):
		case err != nil:
			return err
		case unchangedOnly && r.Action() != "":
			return nil
		}
	}

	if cl := r.changelist; cl != nil {
		if cl.Contains(r) {
			if err := cl.Remove(r, true); err != nil {
				return err
			}
		}
		r.changelist = nil
	}
	return nil
}

// Shelve shelves the opened file into cl, or into the changelist it is
// open in. Files of the default changelist need an explicit target.
func (r *Revision) Shelve(cl *Changelist) error {
	target := cl
	if target == nil {
		current, err := r.Changelist()
		if err != nil {
			return err
		}
		if current == nil || current.IsDefault() || current.Description() == "default" {
			return &ShelveError{Path: r.DepotFile()}
		}
		target = current
	}

	if _, err := r.conn.Run(append(withChange([]string{"shelve"}, target), r.DepotFile())...); err != nil {
		return err
	}
	return r.Query()
}

// Move renames the file to dest, opening it for edit first when needed.
func (r *Revision) Move(dest string, cl *Changelist, force bool) error {
	if !r.IsEdit() {
		if err := r.Edit(cl); err != nil {
			return err
		}
	}

	args := []string{"move"}
	if force {
		args = append(args, "-f")
	}
	args = withChange(args, cl)
	r.conn.logger.Info("move", "from", r.DepotFile(), "to", dest)
	if _, err := r.conn.Run(append(args, r.DepotFile(), dest)...); err != nil {
		return err
	}

	r.rec.Set("depotFile", dest)
	return r.Query()
}

// Field returns a raw fstat field.
func (r *Revision) Field(name string) (string, error) {
	return r.rec.Field(name)
}

// Record returns a copy of the raw fstat record.
func (r *Revision) Record() *Record {
	return r.rec.Clone()
}

// DepotFile is the server-side path.
func (r *Revision) DepotFile() string { return r.rec.Value("depotFile") }

// ClientFile is the local path in the workspace.
func (r *Revision) ClientFile() string { return r.rec.Value("clientFile") }

func (r *Revision) MovedFile() string { return r.rec.Value("movedFile") }

// IsMapped reports whether the file is mapped into the current workspace.
func (r *Revision) IsMapped() bool { return r.rec.Has("isMapped") }

func (r *Revision) IsShelved() bool { return r.rec.Has("shelved") }

// Revision is the revision synced to the workspace; 0 when never synced.
func (r *Revision) Revision() int {
	v, ok := r.rec.Get("haveRev")
	if !ok || v == "none" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (r *Revision) Description() string { return r.rec.Value("desc") }

// Action is the open action (add, edit, delete, move/add, ...); empty when not opened.
func (r *Revision) Action() string { return r.rec.Value("action") }

// Type is the file type the file is opened as; empty when not opened.
func (r *Revision) Type() string { return r.rec.Value("type") }

func (r *Revision) Resolved() int   { return r.intField("resolved") }
func (r *Revision) Unresolved() int { return r.intField("unresolved") }
func (r *Revision) IsResolved() bool {
	return r.Unresolved() == 0
}

// OpenedBy lists the other users that have the file open.
func (r *Revision) OpenedBy() []string { return r.rec.Indexed("otherOpen") }

// LockedBy lists the other users that hold a lock on the file.
func (r *Revision) LockedBy() []string { return r.rec.Indexed("otherLock") }

// IsLocked reports whether anyone, including the current user, holds a lock.
func (r *Revision) IsLocked() bool {
	return r.rec.Has("ourLock") || r.rec.Has("otherLock") || len(r.LockedBy()) > 0
}

func (r *Revision) IsEdit() bool { return r.Action() == "edit" }

// IsSynced reports whether the workspace has the head revision.
func (r *Revision) IsSynced() bool { return r.Revision() == r.head.Revision() }

// Head returns the server-side head metadata captured by the last query.
func (r *Revision) Head() *HeadRevision { return r.head }

// Hash returns the content digest, fetching it when the cached record lacks it.
func (r *Revision) Hash() (string, error) {
	if !r.rec.Has("digest") {
		if err := r.fstat("-m", "1", "-Ol"); err != nil {
			return "", err
		}
	}
	return r.rec.Field("digest")
}

// Size returns the file size in bytes, fetching it when needed.
func (r *Revision) Size() (int64, error) {
	if !r.rec.Has("fileSize") {
		if err := r.fstat("-m", "1", "-Ol"); err != nil {
			return 0, err
		}
	}
	v, err := r.rec.Field("fileSize")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// Changelist returns the changelist the file is open in, resolving it from
// the server on first use. It returns nil when the file is not opened.
func (r *Revision) Changelist() (*Changelist, error) {
	if r.changelist != nil {
		return r.changelist, nil
	}

	change, ok := r.rec.Get("change")
	if !ok || change == "" {
		return nil, nil
	}

	var (
		cl  *Changelist
		err error
	)
	if change == "default" {
		cl, err = r.conn.DefaultChangelist()
	} else {
		n, convErr := strconv.Atoi(change)
		if convErr != nil {
			return nil, errors.Join(&MissingFieldError{Field: "change"}, convErr)
		}
		cl, err = r.conn.Changelist(n)
	}
	if err != nil {
		return nil, err
	}
	r.changelist = cl
	return cl, nil
}

// SetChangelist records cl as this file's changelist and appends the file to
// it when it is not yet a member.
func (r *Revision) SetChangelist(cl *Changelist) error {
	if cl == nil {
		return ErrTypeMismatch
	}
	if !cl.Contains(r) {
		return cl.Append(r)
	}
	r.changelist = cl
	return nil
}

func (r *Revision) intField(name string) int {
	n, err := r.rec.Int(name)
	if err != nil {
		return 0
	}
	return n
}
