package p4

import (
	"fmt"
	"strings"
)

// changeForm is the spec form submitted to `p4 change -i` when saving.
const changeForm = `Change: %s

Client: %s

User:   %s

Status: %s

Description:
	%s

Files:
%s
`

// newChangeForm is the reduced form used to allocate a new changelist.
const newChangeForm = `Change: new

Client: %s

Status: new

Description:
	%s

`

// indentDescription continues every description line with a tab so the
// server reads it as part of the Description field.
func indentDescription(desc string) string {
	return strings.ReplaceAll(desc, "\n", "\n\t")
}

func formatChange(change, client, user, status, description string, files []string) string {
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = "\t" + f
	}
	return fmt.Sprintf(changeForm, change, client, user, status, indentDescription(description), strings.Join(lines, "\n"))
}

func formatNewChange(client, description string) string {
	return fmt.Sprintf(newChangeForm, client, indentDescription(description))
}
