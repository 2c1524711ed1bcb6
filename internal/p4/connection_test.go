package p4_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"p4-go/internal/p4"
	"p4-go/internal/testutil"
)

type recordingObserver struct {
	invocations []p4.Invocation
}

func (o *recordingObserver) CommandFinished(inv p4.Invocation) {
	o.invocations = append(o.invocations, inv)
}

func TestNewConnection(t *testing.T) {
	t.Run("missing port fails before spawning", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		_, err := p4.NewConnection(p4.Options{
			User:     "dev",
			Settings: p4.MapSettings{},
			Executor: exec,
		})

		var connErr *p4.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("error = %v, want *ConnectionError", err)
		}
		if len(exec.Calls()) != 0 {
			t.Errorf("spawned %d processes, want 0", len(exec.Calls()))
		}
	})

	t.Run("missing user fails before spawning", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		_, err := p4.NewConnection(p4.Options{
			Port:     "1666",
			Settings: p4.MapSettings{},
			Executor: exec,
		})

		var connErr *p4.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("error = %v, want *ConnectionError", err)
		}
		if len(exec.Calls()) != 0 {
			t.Errorf("spawned %d processes, want 0", len(exec.Calls()))
		}
	})

	t.Run("explicit values win over settings", func(t *testing.T) {
		conn, err := p4.NewConnection(p4.Options{
			Port: "explicit:1666",
			Settings: p4.MapSettings{
				"P4PORT":   "settings:1666",
				"P4USER":   "from-settings",
				"P4CLIENT": "ws",
			},
			Executor: testutil.NewFakeExecutor(),
		})
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		if conn.Port() != "explicit:1666" {
			t.Errorf("Port() = %q", conn.Port())
		}
		if conn.User() != "from-settings" {
			t.Errorf("User() = %q", conn.User())
		}
		if conn.ClientName() != "ws" {
			t.Errorf("ClientName() = %q", conn.ClientName())
		}
		if conn.Executable() != "p4" {
			t.Errorf("Executable() = %q, want p4", conn.Executable())
		}
		if conn.Level() != p4.ErrorLevelFailed {
			t.Errorf("Level() = %v, want failed", conn.Level())
		}
	})
}

func TestConnection_Run(t *testing.T) {
	t.Run("builds the argument vector", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("info", p4.RecordOf("code", "stat", "userName", testutil.TestUser))
		conn := testutil.NewTestConnection(t, exec)

		records, err := conn.Run("info")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(records) != 1 || records[0].Value("userName") != testutil.TestUser {
			t.Errorf("records = %v", records)
		}

		want := "p4 -u p4test -p ssl:perforce:1666 -c p4_unit_tests -G info"
		if got := strings.Join(exec.Calls()[0].Argv, " "); got != want {
			t.Errorf("argv = %q, want %q", got, want)
		}
	})

	t.Run("stderr output is a failure", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Handle("info", testutil.Response{
			Records: []*p4.Record{p4.RecordOf("code", "stat")},
			Stderr:  "Perforce client error: something broke",
		})
		conn := testutil.NewTestConnection(t, exec)

		records, err := conn.Run("info")
		var cmdErr *p4.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("error = %v, want *CommandError", err)
		}
		if records != nil {
			t.Errorf("records = %v, want nil", records)
		}
		if !strings.Contains(cmdErr.Message, "something broke") {
			t.Errorf("Message = %q", cmdErr.Message)
		}
	})

	t.Run("password is redacted in errors", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Handle("info", testutil.Response{Stderr: "boom"})
		conn, err := p4.NewConnection(p4.Options{
			Port:     "1666",
			User:     "dev",
			Password: "s3cret",
			Settings: p4.MapSettings{},
			Executor: exec,
		})
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}

		_, err = conn.Run("info")
		if err == nil {
			t.Fatal("expected error")
		}
		if strings.Contains(err.Error(), "s3cret") {
			t.Errorf("error leaks the password: %v", err)
		}
		var cmdErr *p4.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("error = %v, want *CommandError", err)
		}
		if got := strings.Join(cmdErr.Command, " "); !strings.Contains(got, "-P ********") {
			t.Errorf("Command = %q, want redacted password", got)
		}
		// The real process still receives it.
		if got := strings.Join(exec.Calls()[0].Argv, " "); !strings.Contains(got, "-P s3cret") {
			t.Errorf("argv = %q, want password passed to p4", got)
		}
	})

	t.Run("raw mode returns stdout and sends stdin", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Handle("change -i", testutil.Response{Stdout: "Change 12 created.\n"})
		conn := testutil.NewTestConnection(t, exec)

		out, err := conn.RunRaw([]byte("form"), "change", "-i")
		if err != nil {
			t.Fatalf("RunRaw() error = %v", err)
		}
		if string(out) != "Change 12 created.\n" {
			t.Errorf("out = %q", out)
		}
		call := exec.Calls()[0]
		if string(call.Stdin) != "form" {
			t.Errorf("stdin = %q", call.Stdin)
		}
		for _, a := range call.Argv {
			if a == "-G" {
				t.Error("raw mode must not pass -G")
			}
		}
	})

	t.Run("observer sees every invocation", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("info", p4.RecordOf("code", "stat"))
		exec.Handle("user", testutil.Response{Stderr: "denied"})
		obs := &recordingObserver{}
		clock := testutil.FixedClock()
		clock.Step = time.Second
		conn, err := p4.NewConnection(p4.Options{
			Port:     "1666",
			User:     "dev",
			Settings: p4.MapSettings{},
			Executor: exec,
			Observer: obs,
			Clock:    clock,
		})
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}

		conn.Run("info")
		conn.Run("user", "-o")

		if len(obs.invocations) != 2 {
			t.Fatalf("got %d invocations, want 2", len(obs.invocations))
		}
		first := obs.invocations[0]
		if first.Err != nil {
			t.Errorf("first.Err = %v", first.Err)
		}
		if got := first.Finished.Sub(first.Started); got != time.Second {
			t.Errorf("duration = %v, want 1s", got)
		}
		if obs.invocations[1].Err == nil {
			t.Error("expected second invocation to carry the error")
		}
	})
}

func TestConnection_RunChunked(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	conn := testutil.NewTestConnection(t, exec)

	var files []string
	for i := 0; i < 400; i++ {
		files = append(files, "//depot/very/long/path/to/some/project/directory/file"+strings.Repeat("x", i%7)+".txt")
	}
	exec.Handle("fstat", testutil.Response{Records: []*p4.Record{p4.RecordOf("code", "stat")}})

	records, err := conn.RunChunked([]string{"fstat"}, files)
	if err != nil {
		t.Fatalf("RunChunked() error = %v", err)
	}

	calls := exec.Calls()
	if len(calls) < 2 {
		t.Fatalf("got %d invocations, want the list split", len(calls))
	}
	if len(records) != len(calls) {
		t.Errorf("got %d records, want one per invocation (%d)", len(records), len(calls))
	}

	var passed []string
	for _, c := range calls {
		sub := c.Subcommand()
		if sub[0] != "fstat" {
			t.Fatalf("subcommand = %v", sub)
		}
		size := 0
		for _, f := range sub[1:] {
			size += len(f)
		}
		if size > p4.MaxArgsLength {
			t.Errorf("invocation carries %d bytes of file arguments", size)
		}
		passed = append(passed, sub[1:]...)
	}
	if strings.Join(passed, "\n") != strings.Join(files, "\n") {
		t.Error("files were not passed in input order")
	}
}

func TestConnection_Ls(t *testing.T) {
	t.Run("returns a revision per file", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat",
			testutil.FstatRecord("//depot/a.txt"),
			testutil.FstatRecord("//depot/b.txt", "haveRev", "none"),
		)
		conn := testutil.NewTestConnection(t, exec)

		revs, err := conn.Ls([]string{"//depot/a.txt", "//depot/b.txt"}, p4.LsOptions{})
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(revs) != 2 {
			t.Fatalf("got %d revisions, want 2", len(revs))
		}
		if revs[0].DepotFile() != "//depot/a.txt" || revs[1].DepotFile() != "//depot/b.txt" {
			t.Errorf("depot files = %s, %s", revs[0], revs[1])
		}
		if revs[1].Revision() != 0 {
			t.Errorf("Revision() = %d, want 0", revs[1].Revision())
		}
	})

	t.Run("exclude deleted adds a filter", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat", testutil.FstatRecord("//depot/a.txt"))
		conn := testutil.NewTestConnection(t, exec)

		if _, err := conn.Ls([]string{"//depot/..."}, p4.LsOptions{ExcludeDeleted: true}); err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		sub := exec.Calls()[0].Subcommand()
		want := []string{"fstat", "-F", "^headAction=delete & ^headAction=move/delete", "//depot/..."}
		if strings.Join(sub, "|") != strings.Join(want, "|") {
			t.Errorf("subcommand = %q, want %q", sub, want)
		}
	})

	t.Run("lenient mode swallows failures", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat", testutil.ErrorRecord(p4.ErrorLevelFailed, "//depot/nope - no such file(s).\n"))
		conn := testutil.NewTestConnection(t, exec)

		revs, err := conn.Ls([]string{"//depot/nope"}, p4.LsOptions{})
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(revs) != 0 {
			t.Errorf("got %d revisions, want 0", len(revs))
		}
	})

	t.Run("strict mode reports files outside the client", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat", testutil.ErrorRecord(p4.ErrorLevelFailed, "Path '/tmp/x' is not under client's root '/ws'.\n"))
		conn := testutil.NewTestConnection(t, exec)

		_, err := conn.Ls([]string{"/tmp/x"}, p4.LsOptions{Strict: true})
		var revErr *p4.RevisionError
		if !errors.As(err, &revErr) {
			t.Fatalf("error = %v, want *RevisionError", err)
		}
	})

	t.Run("strict mode returns other failures unchanged", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat", testutil.ErrorRecord(p4.ErrorLevelFailed, "no such file(s).\n"))
		conn := testutil.NewTestConnection(t, exec)

		_, err := conn.Ls([]string{"//depot/nope"}, p4.LsOptions{Strict: true})
		var cmdErr *p4.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("error = %v, want *CommandError", err)
		}
	})

	t.Run("warnings are dropped from the result", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("fstat",
			testutil.FstatRecord("//depot/a.txt"),
			testutil.ErrorRecord(p4.ErrorLevelWarn, "//depot/b.txt - no such file(s).\n"),
		)
		conn := testutil.NewTestConnection(t, exec)

		revs, err := conn.Ls([]string{"//depot/a.txt", "//depot/b.txt"}, p4.LsOptions{Strict: true})
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(revs) != 1 {
			t.Errorf("got %d revisions, want 1", len(revs))
		}
	})
}

func TestConnection_Status(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testutil.FakeExecutor)
		want  p4.ConnectionStatus
	}{
		{
			name: "ok",
			setup: func(e *testutil.FakeExecutor) {
				e.Records("info", p4.RecordOf("code", "stat", "clientName", testutil.TestClient))
				e.Records("user -o", p4.RecordOf("code", "stat", "User", testutil.TestUser))
			},
			want: p4.StatusOK,
		},
		{
			name: "unknown client",
			setup: func(e *testutil.FakeExecutor) {
				e.Records("info", p4.RecordOf("code", "stat", "clientName", "*unknown*"))
			},
			want: p4.StatusInvalidClient,
		},
		{
			name: "not logged in",
			setup: func(e *testutil.FakeExecutor) {
				e.Records("info", p4.RecordOf("code", "stat", "clientName", testutil.TestClient))
				e.Records("user -o", testutil.ErrorRecord(p4.ErrorLevelFailed, "Perforce password (P4PASSWD) invalid or unset.\n"))
			},
			want: p4.StatusNoAuth,
		},
		{
			name: "server down",
			setup: func(e *testutil.FakeExecutor) {
				e.Handle("info", testutil.Response{Stderr: "Perforce client error:\n\tConnect to server failed; check $P4PORT.\n"})
			},
			want: p4.StatusOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := testutil.NewFakeExecutor()
			tt.setup(exec)
			conn := testutil.NewTestConnection(t, exec)

			if got := conn.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnection_Add(t *testing.T) {
	t.Run("adds a file to a changelist", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		describePending(exec, 5, "Work in progress")
		exec.Handle("opened", testutil.Response{})
		exec.Records("add", p4.RecordOf("code", "stat", "depotFile", "//depot/new.txt", "action", "add"))
		exec.Records("add -n", p4.RecordOf("code", "stat", "depotFile", "//depot/new.txt", "action", "add"))
		exec.Records("fstat", testutil.FstatRecord("//depot/new.txt", "action", "add", "change", "5", "haveRev", "none"))
		exec.Handle("reopen", testutil.Response{})
		conn := testutil.NewTestConnection(t, exec)

		cl, err := conn.Changelist(5)
		if err != nil {
			t.Fatalf("Changelist() error = %v", err)
		}
		rev, err := conn.Add("//depot/new.txt", cl)
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		if rev.Action() != "add" {
			t.Errorf("Action() = %q, want add", rev.Action())
		}
		if !cl.Contains(rev) {
			t.Error("expected the new file in the changelist")
		}
		if exec.Count("add -c 5 //depot/new.txt") != 1 {
			t.Errorf("add calls = %v", exec.Calls())
		}
	})

	t.Run("refuses files p4 cannot add", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		exec.Records("add -n", testutil.InfoRecord("//depot/a.txt - can't add existing file"))
		conn := testutil.NewTestConnection(t, exec)

		if conn.CanAdd("//depot/a.txt") {
			t.Error("CanAdd() = true, want false")
		}
		_, err := conn.Add("//depot/a.txt", nil)
		var revErr *p4.RevisionError
		if !errors.As(err, &revErr) {
			t.Fatalf("error = %v, want *RevisionError", err)
		}
		if exec.Count("add //depot/a.txt") != 0 {
			t.Error("add must not run when add -n refuses")
		}
	})
}
