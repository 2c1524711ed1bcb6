package testutil

import (
	"testing"

	"p4-go/internal/p4"
)

// Identity used by NewTestConnection.
const (
	TestPort   = "ssl:perforce:1666"
	TestUser   = "p4test"
	TestClient = "p4_unit_tests"
)

// NewTestConnection creates a Connection that runs every command through exec.
func NewTestConnection(t *testing.T, exec *FakeExecutor) *p4.Connection {
	t.Helper()

	conn, err := p4.NewConnection(p4.Options{
		Port:     TestPort,
		User:     TestUser,
		Client:   TestClient,
		Settings: p4.MapSettings{},
		Executor: exec,
		Clock:    FixedClock(),
	})
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	return conn
}

// FstatRecord builds a typical fstat record for a synced, mapped file.
func FstatRecord(depotFile string, kv ...string) *p4.Record {
	r := p4.RecordOf(
		"depotFile", depotFile,
		"clientFile", "/ws"+depotFile[1:],
		"isMapped", "",
		"headAction", "edit",
		"headType", "text",
		"headTime", "1443740775",
		"headRev", "3",
		"headChange", "42",
		"headModTime", "1443740700",
		"haveRev", "3",
	)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// ErrorRecord builds an error record with the given severity.
func ErrorRecord(severity p4.ErrorLevel, message string) *p4.Record {
	return p4.RecordOf(
		"code", "error",
		"data", message,
		"severity", itoa(int(severity)),
		"generic", "17",
	)
}

// InfoRecord builds an informational record.
func InfoRecord(message string) *p4.Record {
	return p4.RecordOf("code", "info", "data", message, "level", "0")
}

func itoa(n int) string {
	if n < 0 {
		return "-" + itoa(-n)
	}
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}
