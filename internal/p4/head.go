package p4

import (
	"strconv"
	"time"
)

// HeadRevision is the server's latest known version of a file, as captured
// in the fstat record of its Revision. Missing fields read as zero values.
type HeadRevision struct {
	rec *Record
}

func newHeadRevision(rec *Record) *HeadRevision {
	return &HeadRevision{rec: rec}
}

func (h *HeadRevision) Action() string { return h.rec.Value("headAction") }

// Change is the changelist that produced the head revision.
func (h *HeadRevision) Change() int { return h.int("headChange") }

func (h *HeadRevision) Revision() int { return h.int("headRev") }
func (h *HeadRevision) Type() string  { return h.rec.Value("headType") }

// Time is when the head revision was submitted.
func (h *HeadRevision) Time() time.Time { return h.unix("headTime") }

// ModifiedTime is the file's modification time at submit.
func (h *HeadRevision) ModifiedTime() time.Time { return h.unix("headModTime") }

func (h *HeadRevision) int(key string) int {
	n, err := strconv.Atoi(h.rec.Value(key))
	if err != nil {
		return 0
	}
	return n
}

func (h *HeadRevision) unix(key string) time.Time {
	n, err := strconv.ParseInt(h.rec.Value(key), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
