package p4

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrorLevel is the p4 message severity.
type ErrorLevel int

const (
	ErrorLevelEmpty ErrorLevel = iota
	ErrorLevelInfo
	ErrorLevelWarn
	ErrorLevelFailed
	ErrorLevelFatal
)

var errorLevelNames = []string{"empty", "info", "warn", "failed", "fatal"}

func (l ErrorLevel) String() string {
	if l < 0 || int(l) >= len(errorLevelNames) {
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
	return errorLevelNames[l]
}

// ParseErrorLevel converts a level name ("warn", "failed", ...) or its
// numeric value into an ErrorLevel.
func ParseErrorLevel(s string) (ErrorLevel, error) {
	for i, name := range errorLevelNames {
		if s == name {
			return ErrorLevel(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(errorLevelNames) {
		return 0, fmt.Errorf("unknown error level %q", s)
	}
	return ErrorLevel(n), nil
}

// Record is one decoded p4 output unit: an ordered mapping of field name to value.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// RecordOf builds a record from alternating key/value pairs.
func RecordOf(kv ...string) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set stores a value, keeping the original position of an existing key.
func (r *Record) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it was present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or "" if absent.
func (r *Record) Value(key string) string {
	return r.values[key]
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Field returns the value for key or a *MissingFieldError.
func (r *Record) Field(key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", &MissingFieldError{Field: key}
	}
	return v, nil
}

// Int parses the value for key as an integer.
func (r *Record) Int(key string) (int, error) {
	v, err := r.Field(key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// Keys returns the field names in decode order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Indexed collects the values of prefix0, prefix1, ... until the first gap.
func (r *Record) Indexed(prefix string) []string {
	var out []string
	for i := 0; ; i++ {
		v, ok := r.values[prefix+strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// IsError reports whether the record carries code=error.
func (r *Record) IsError() bool {
	return r.values["code"] == "error"
}

// Severity returns the record's severity. Error records without one are
// treated as failures.
func (r *Record) Severity() ErrorLevel {
	v, ok := r.values["severity"]
	if !ok {
		return ErrorLevelFailed
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return ErrorLevelFailed
	}
	return ErrorLevel(n)
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	c := &Record{keys: append([]string(nil), r.keys...), values: make(map[string]string, len(r.values))}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the record as a YAML mapping preserving field order.
func (r *Record) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range r.keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.values[k]},
		)
	}
	return node, nil
}
