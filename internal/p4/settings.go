package p4

import (
	"bufio"
	"bytes"
	"os"
	"strings"
)

// Settings resolves p4 configuration variables (P4PORT, P4USER, P4CLIENT, ...)
// that were not passed explicitly.
type Settings interface {
	Lookup(name string) (string, bool)
}

// EnvSettings reads settings from the process environment.
type EnvSettings struct{}

func (EnvSettings) Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapSettings serves settings from a fixed map.
type MapSettings map[string]string

func (m MapSettings) Lookup(name string) (string, bool) {
	v, ok := m[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SettingsChain consults each source in order and returns the first hit.
type SettingsChain []Settings

func (c SettingsChain) Lookup(name string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}

// CommandSettings asks the p4 executable for its effective settings
// (`p4 set -q`), which covers P4CONFIG files, the registry and P4ENVIRO.
// The query runs once, on first lookup.
type CommandSettings struct {
	Executable string
	Executor   Executor

	loaded bool
	values map[string]string
}

func (s *CommandSettings) Lookup(name string) (string, bool) {
	if !s.loaded {
		s.loaded = true
		s.values = s.load()
	}
	v, ok := s.values[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *CommandSettings) load() map[string]string {
	exe := s.Executable
	if exe == "" {
		exe = "p4"
	}
	executor := s.Executor
	if executor == nil {
		executor = &OSExecutor{}
	}
	res, err := executor.Execute([]string{exe, "set", "-q"}, nil)
	if err != nil || len(res.Stderr) > 0 {
		return nil
	}
	return parseSetOutput(res.Stdout)
}

// parseSetOutput parses NAME=value lines. A trailing " (set)" or
// " (config '...')" origin annotation is dropped.
func parseSetOutput(out []byte) map[string]string {
	values := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		name, value, ok := strings.Cut(line, "=")
		if !ok || name == "" {
			continue
		}
		if i := strings.LastIndex(value, " ("); i >= 0 && strings.HasSuffix(value, ")") {
			value = value[:i]
		}
		values[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return values
}
