package secret

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PassphraseEnv names the environment variable consulted before prompting.
const PassphraseEnv = "P4GO_PASSPHRASE"

// Prompter reads a secret from the user.
type Prompter interface {
	Prompt(label string) (string, error)
}

// TerminalPrompter reads without echo when In is a terminal and falls back
// to reading one line otherwise.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stderr and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) Prompt(label string) (string, error) {
	fmt.Fprintf(p.Out, "%s: ", label)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Passphrase returns $P4GO_PASSPHRASE when set, otherwise asks p.
func Passphrase(p Prompter) (string, error) {
	if v := os.Getenv(PassphraseEnv); v != "" {
		return v, nil
	}
	if p == nil {
		return "", fmt.Errorf("no passphrase: set %s", PassphraseEnv)
	}
	return p.Prompt("Passphrase")
}

// NewPassphrase asks for a passphrase twice and checks both entries match.
func NewPassphrase(p Prompter) (string, error) {
	first, err := p.Prompt("New passphrase")
	if err != nil {
		return "", err
	}
	second, err := p.Prompt("Repeat passphrase")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	if first == "" {
		return "", errors.New("empty passphrase")
	}
	return first, nil
}
