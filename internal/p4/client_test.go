package p4_test

import (
	"testing"
	"time"

	"p4-go/internal/p4"
	"p4-go/internal/testutil"
)

func TestConnection_Client(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("client -o", p4.RecordOf(
		"code", "stat",
		"Client", testutil.TestClient,
		"Owner", testutil.TestUser,
		"Host", "build01",
		"Description", "Created by p4test.\n",
		"Root", "/ws",
		"Options", "noallwrite noclobber nocompress unlocked nomodtime normdir",
		"Update", "2024/01/15 10:30:00",
		"Access", "2024/01/16 08:00:00",
		"View0", "//depot/main/... //p4_unit_tests/main/...",
		"View1", `"//depot/with space/..." "//p4_unit_tests/with space/..."`,
	))
	conn := testutil.NewTestConnection(t, exec)

	cl, err := conn.Client("")
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if got := exec.Calls()[0].Subcommand(); len(got) != 2 {
		t.Errorf("subcommand = %v, want client -o without a name", got)
	}

	if cl.Name() != testutil.TestClient || cl.Root() != "/ws" || cl.Owner() != testutil.TestUser {
		t.Errorf("Name() = %q, Root() = %q, Owner() = %q", cl.Name(), cl.Root(), cl.Owner())
	}
	if cl.Host() != "build01" {
		t.Errorf("Host() = %q", cl.Host())
	}
	if cl.Description() != "Created by p4test." {
		t.Errorf("Description() = %q", cl.Description())
	}
	if cl.Stream() != "" {
		t.Errorf("Stream() = %q, want empty", cl.Stream())
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local)
	if !cl.Update().Equal(want) {
		t.Errorf("Update() = %v, want %v", cl.Update(), want)
	}

	view := cl.View()
	if len(view) != 2 {
		t.Fatalf("View() has %d lines, want 2", len(view))
	}
	if view[0].Depot != "//depot/main/..." || view[0].Client != "//p4_unit_tests/main/..." {
		t.Errorf("view[0] = %+v", view[0])
	}
	if view[1].Depot != "//depot/with space/..." || view[1].Client != "//p4_unit_tests/with space/..." {
		t.Errorf("view[1] = %+v", view[1])
	}
}

func TestConnection_Stream(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("stream -o -v //streams/main", p4.RecordOf(
		"code", "stat",
		"Stream", "//streams/main",
		"Owner", testutil.TestUser,
		"Name", "main",
		"Parent", "none",
		"Type", "mainline",
		"Description", "Mainline.\n",
		"Options", "allsubmit unlocked notoparent nofromparent mergedown",
		"Paths0", "share ...",
		"Paths1", "isolate bin/...",
		"View0", "//streams/main/... ...",
	))
	conn := testutil.NewTestConnection(t, exec)

	s, err := conn.Stream("//streams/main")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if s.Name() != "//streams/main" || s.Type() != "mainline" {
		t.Errorf("Name() = %q, Type() = %q", s.Name(), s.Type())
	}
	if s.Parent() != "" {
		t.Errorf("Parent() = %q, want empty for mainline", s.Parent())
	}
	if got := s.Paths(); len(got) != 2 || got[1] != "isolate bin/..." {
		t.Errorf("Paths() = %v", got)
	}
	if len(s.View()) != 1 || s.View()[0].Client != "..." {
		t.Errorf("View() = %v", s.View())
	}
	if s.Description() != "Mainline." {
		t.Errorf("Description() = %q", s.Description())
	}
}

func TestConnection_ClientError(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	exec.Records("client -o", testutil.ErrorRecord(p4.ErrorLevelFailed, "Client 'bogus' unknown.\n"))
	conn := testutil.NewTestConnection(t, exec)

	if _, err := conn.Client("bogus"); err == nil {
		t.Fatal("expected error for unknown client")
	}
}
