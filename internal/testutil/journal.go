package testutil

import (
	"testing"

	"p4-go/internal/journal"
)

// NewTestJournal creates a new in-memory journal with schema applied, using
// sequential IDs and a fixed clock. It is closed when the test completes.
func NewTestJournal(t *testing.T) *journal.Journal {
	t.Helper()

	j, err := journal.Open(":memory:", journal.Options{
		IDs:   NewStubIDGenerator(),
		Clock: FixedClock(),
	})
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	if err := j.Migrate(); err != nil {
		j.Close()
		t.Fatalf("failed to migrate journal: %v", err)
	}

	t.Cleanup(func() {
		j.Close()
	})

	return j
}
