package app

import (
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"p4-go/internal/config"
	"p4-go/internal/journal"
	"p4-go/internal/p4"
	"p4-go/internal/secret"
	"p4-go/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Perforce.Port = testutil.TestPort
	cfg.Perforce.User = testutil.TestUser
	cfg.Perforce.Client = testutil.TestClient
	cfg.Journal = config.JournalConfig{Type: "memory"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, exec *testutil.FakeExecutor, operation string) *P4App {
	t.Helper()
	a, err := NewP4AppWithDeps(cfg, operation, Deps{
		Executor: exec,
		Stderr:   io.Discard,
		Clock:    testutil.FixedClock(),
		IDs:      testutil.NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("NewP4AppWithDeps() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewP4App_Errors(t *testing.T) {
	t.Run("missing port", func(t *testing.T) {
		t.Setenv("P4PORT", "")
		cfg := testConfig(t)
		cfg.Perforce.Port = ""

		_, err := NewP4AppWithDeps(cfg, "Status", Deps{Executor: testutil.NewFakeExecutor(), Stderr: io.Discard})
		var connErr *p4.ConnectionError
		if !errors.As(err, &connErr) {
			t.Errorf("error = %v, want *p4.ConnectionError", err)
		}
	})

	t.Run("unknown level", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Perforce.Level = "loud"

		if _, err := NewP4AppWithDeps(cfg, "Status", Deps{Stderr: io.Discard}); err == nil {
			t.Error("expected error for unknown level")
		}
	})

	t.Run("unmigrated sqlite journal", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Journal = config.JournalConfig{Type: "sqlite", DataDir: filepath.Join(t.TempDir(), "db")}

		_, err := NewP4AppWithDeps(cfg, "Status", Deps{Stderr: io.Discard})
		if err == nil || !strings.Contains(err.Error(), "out of date") {
			t.Errorf("error = %v, want schema out of date", err)
		}
	})
}

func TestP4App_Edit(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("fstat", testutil.FstatRecord("//depot/a.txt"))
	exec.Records("edit", testutil.InfoRecord("//depot/a.txt#3 - opened for edit"))
	a := newTestApp(t, testConfig(t), exec, "Edit")

	revs, err := a.Edit([]string{"//depot/a.txt"}, 0)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(revs) != 1 || revs[0].DepotFile() != "//depot/a.txt" {
		t.Fatalf("Edit() = %v", revs)
	}
	if exec.Count("edit //depot/a.txt") != 1 {
		t.Errorf("edit ran %d times, want 1", exec.Count("edit //depot/a.txt"))
	}

	op := a.Operation()
	if !op.Persisted() {
		t.Fatal("mutating command must persist its operation")
	}
	if op.Parameters != "//depot/a.txt" || op.Status != journal.StatusSuccess {
		t.Errorf("operation = %+v", op)
	}

	linked, err := a.OperationInvocations(op.ID)
	if err != nil {
		t.Fatalf("OperationInvocations() error = %v", err)
	}
	// ls, edit, re-query
	if len(linked) != 3 {
		t.Errorf("got %d linked invocations, want 3", len(linked))
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestP4App_Edit_Failure(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("fstat", testutil.FstatRecord("//depot/a.txt"))
	exec.Handle("edit", testutil.Response{Stderr: "//depot/a.txt - file(s) not on client.\n"})
	a := newTestApp(t, testConfig(t), exec, "Edit")

	_, err := a.Edit([]string{"//depot/a.txt"}, 0)
	var cmdErr *p4.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Edit() error = %v, want *p4.CommandError", err)
	}
	if a.Operation().Status != journal.StatusError {
		t.Errorf("Status = %q, want %q", a.Operation().Status, journal.StatusError)
	}

	entries, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Status != journal.StatusError {
		t.Errorf("History() = %d entries, newest status %q", len(entries), entries[0].Status)
	}
}

func TestP4App_Edit_NoSuchFile(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Handle("fstat", testutil.Response{})
	a := newTestApp(t, testConfig(t), exec, "Edit")

	_, err := a.Edit([]string{"//depot/missing.txt"}, 0)
	var revErr *p4.RevisionError
	if !errors.As(err, &revErr) {
		t.Errorf("Edit() error = %v, want *p4.RevisionError", err)
	}
}

func TestP4App_ReadOnlyCommandsDoNotPersist(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("fstat", testutil.FstatRecord("//depot/a.txt"))
	a := newTestApp(t, testConfig(t), exec, "Ls")

	revs, err := a.Ls([]string{"//depot/..."}, p4.LsOptions{})
	if err != nil || len(revs) != 1 {
		t.Fatalf("Ls() = %v, %v", revs, err)
	}
	if a.Operation().Persisted() {
		t.Error("read-only command persisted its operation")
	}

	entries, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || entries[0].OperationID.Valid {
		t.Errorf("History() = %+v", entries)
	}
}

func TestP4App_SubmitChangelist(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("describe -s 5", p4.RecordOf(
		"code", "stat", "change", "5", "user", testutil.TestUser, "client", testutil.TestClient,
		"status", p4.ChangePending, "desc", "Fix bug\n", "time", "1700000000",
	))
	exec.Records("opened -c 5", p4.RecordOf("code", "stat", "depotFile", "//depot/a.txt", "change", "5"))
	exec.Records("fstat", testutil.FstatRecord("//depot/a.txt", "action", "edit", "change", "5"))
	exec.Handle("submit -c 5", testutil.Response{Stdout: "Change 5 renamed change 11 and submitted.\n"})
	a := newTestApp(t, testConfig(t), exec, "Submit")

	cl, err := a.SubmitChangelist(5)
	if err != nil {
		t.Fatalf("SubmitChangelist() error = %v", err)
	}
	if cl.Number() != 11 || cl.Status() != p4.ChangeSubmitted {
		t.Errorf("changelist = %d %s", cl.Number(), cl.Status())
	}
	if a.Operation().Parameters != "5" {
		t.Errorf("Parameters = %q, want %q", a.Operation().Parameters, "5")
	}
}

func TestP4App_Move_RejectsWildcards(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	a := newTestApp(t, testConfig(t), exec, "Move")

	_, err := a.Move("//depot/src/...", "//depot/dst/...", 0, false)
	var revErr *p4.RevisionError
	if !errors.As(err, &revErr) {
		t.Errorf("Move() error = %v, want *p4.RevisionError", err)
	}
	if len(exec.Calls()) != 0 {
		t.Errorf("Move() spawned %d commands, want 0", len(exec.Calls()))
	}
}

func TestP4App_NoJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = config.JournalConfig{Type: "none"}
	exec := testutil.NewFakeExecutor()
	exec.Records("fstat", testutil.FstatRecord("//depot/a.txt"))
	exec.Records("edit", testutil.InfoRecord("opened"))
	a := newTestApp(t, cfg, exec, "Edit")

	if _, err := a.Edit([]string{"//depot/a.txt"}, 0); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if _, err := a.History(10); !errors.Is(err, ErrNoJournal) {
		t.Errorf("History() error = %v, want ErrNoJournal", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestP4App_PasswordFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Perforce.PasswordFile = filepath.Join(t.TempDir(), "p4passwd.age")

	store := secret.NewStore(cfg.Perforce.PasswordFile)
	store.WorkFactor = 10
	if err := store.Save("hunter2", "open sesame"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Setenv(secret.PassphraseEnv, "open sesame")

	exec := testutil.NewFakeExecutor()
	exec.Records("info", p4.RecordOf("code", "stat", "userName", testutil.TestUser))
	a := newTestApp(t, cfg, exec, "Run")

	if _, err := a.Run([]string{"info"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	argv := exec.Calls()[0].Argv
	i := slices.Index(argv, "-P")
	if i < 0 || argv[i+1] != "hunter2" {
		t.Errorf("argv = %v, want -P hunter2", argv)
	}

	entries, err := a.History(1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if strings.Contains(entries[0].Command, "hunter2") {
		t.Errorf("journal leaked the password: %s", entries[0].Command)
	}
}

func TestP4App_UseP4Set(t *testing.T) {
	t.Setenv("P4PORT", "")
	t.Setenv("P4USER", "")
	cfg := testConfig(t)
	cfg.Perforce.Port = ""
	cfg.Perforce.User = ""
	cfg.Perforce.UseP4Set = true

	exec := testutil.NewFakeExecutor()
	exec.Handle("set -q", testutil.Response{
		Stdout: "P4PORT=ssl:perforce:1666 (set)\nP4USER=alice (config '/ws/.p4config')\n",
	})
	a := newTestApp(t, cfg, exec, "Status")

	if a.Conn().Port() != "ssl:perforce:1666" {
		t.Errorf("Port() = %q", a.Conn().Port())
	}
	if a.Conn().User() != "alice" {
		t.Errorf("User() = %q", a.Conn().User())
	}
	if exec.Count("set -q") != 1 {
		t.Errorf("p4 set ran %d times, want 1", exec.Count("set -q"))
	}
}

func TestResolvePath(t *testing.T) {
	abs, err := filepath.Abs("rel/a.txt")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		raw  string
		want string
	}{
		{"//depot/a.txt", "//depot/a.txt"},
		{"@42", "@42"},
		{"/ws/a.txt", "/ws/a.txt"},
		{"rel/a.txt", abs},
	}
	for _, tt := range tests {
		got, err := resolvePath(tt.raw)
		if err != nil {
			t.Fatalf("resolvePath(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("resolvePath(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
