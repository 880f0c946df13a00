package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is one top-level member of a merge document.
type Field struct {
	Name  string
	Value json.RawMessage
}

// IsNull reports whether the member was sent as JSON null.
func (f Field) IsNull() bool {
	return len(f.Value) == 0 || string(bytes.TrimSpace(f.Value)) == "null"
}

// Fields is a JSON object that remembers the order its members were written
// in. Duplicate names keep the last value at the position of the first.
type Fields []Field

// UnmarshalJSON implements json.Unmarshaler.
func (fs *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("fields: expected a JSON object")
	}
	out := Fields{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("fields: member %q: %w", name, err)
		}
		if i, seen := index[name]; seen {
			out[i].Value = raw
			continue
		}
		index[name] = len(out)
		out = append(out, Field{Name: name, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fs = out
	return nil
}

// MarshalJSON implements json.Marshaler, preserving member order.
func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value of the named member.
func (fs Fields) Get(name string) (json.RawMessage, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}
