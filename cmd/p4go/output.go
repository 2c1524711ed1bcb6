package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"p4-go/internal/journal"
	"p4-go/internal/p4"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v as JSON or YAML, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(w io.Writer)) error {
	switch format {
	case "", outputText:
		text(w)
		return nil
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func renderStdout(v any, text func(w io.Writer)) error {
	return render(os.Stdout, outputFormat, v, text)
}

func revisionRecords(revs []*p4.Revision) []*p4.Record {
	out := make([]*p4.Record, len(revs))
	for i, r := range revs {
		out[i] = r.Record()
	}
	return out
}

func printRevisions(w io.Writer, revs []*p4.Revision) {
	for _, r := range revs {
		action := r.Action()
		if action == "" {
			action = r.Head().Action()
		}
		fmt.Fprintf(w, "%s#%d  %-10s  %s\n", r.DepotFile(), r.Revision(), action, r.Type())
	}
}

type changelistView struct {
	Change      int       `json:"change" yaml:"change"`
	Status      string    `json:"status" yaml:"status"`
	User        string    `json:"user" yaml:"user"`
	Client      string    `json:"client" yaml:"client"`
	Time        time.Time `json:"time,omitzero" yaml:"time,omitempty"`
	Description string    `json:"description" yaml:"description"`
	Files       []string  `json:"files" yaml:"files"`
}

func newChangelistView(cl *p4.Changelist) changelistView {
	v := changelistView{
		Change:      cl.Number(),
		Status:      cl.Status(),
		User:        cl.User(),
		Client:      cl.Client(),
		Time:        cl.Time(),
		Description: strings.TrimSpace(cl.Description()),
		Files:       []string{},
	}
	for _, f := range cl.Files() {
		v.Files = append(v.Files, f.DepotFile())
	}
	return v
}

func printChangelist(w io.Writer, v changelistView) {
	name := fmt.Sprintf("Change %d", v.Change)
	if v.Change == 0 {
		name = "Default change"
	}
	fmt.Fprintf(w, "%s  %s  %s@%s\n", name, v.Status, v.User, v.Client)
	for _, line := range strings.Split(v.Description, "\n") {
		fmt.Fprintf(w, "\t%s\n", line)
	}
	if len(v.Files) > 0 {
		fmt.Fprintln(w)
		for _, f := range v.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func printView(w io.Writer, view []p4.ViewMapping) {
	for _, m := range view {
		fmt.Fprintf(w, "  %s %s\n", m.Depot, m.Client)
	}
}

type entryView struct {
	ID        string        `json:"id" yaml:"id"`
	Operation int64         `json:"operation,omitempty" yaml:"operation,omitempty"`
	Command   string        `json:"command" yaml:"command"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`
	Status    string        `json:"status" yaml:"status"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func newEntryViews(entries []*journal.Entry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{
			ID:        e.ID,
			Operation: e.OperationID.Int64,
			Command:   e.Command,
			StartedAt: e.StartedAt,
			Duration:  e.Duration(),
			Status:    e.Status,
			Error:     e.Error,
		}
	}
	return out
}

func printEntries(w io.Writer, entries []entryView) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No p4 invocations recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-7s  %8s  %s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status,
			e.Duration.Truncate(time.Millisecond),
			e.Command,
		)
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", strings.TrimSpace(e.Error))
		}
	}
}

type operationView struct {
	ID         int64      `json:"id" yaml:"id"`
	Operation  string     `json:"operation" yaml:"operation"`
	Parameters string     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Status     string     `json:"status" yaml:"status"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

func newOperationViews(ops []*journal.Operation) []operationView {
	out := make([]operationView, len(ops))
	for i, op := range ops {
		out[i] = operationView{
			ID:         op.ID,
			Operation:  op.Operation,
			Parameters: op.Parameters,
			Status:     op.Status,
			StartedAt:  op.StartedAt,
		}
		if op.FinishedAt.Valid {
			t := op.FinishedAt.Time
			out[i].FinishedAt = &t
		}
	}
	return out
}

func printOperations(w io.Writer, ops []operationView) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations recorded.")
		return
	}
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Fprintf(w, "#%d  %-15s  %s  %-8s  %-8s  %s\n",
			op.ID,
			op.Operation,
			op.StartedAt.Local().Format("2006-01-02 15:04:05"),
			op.Status,
			duration,
			op.Parameters,
		)
	}
}
