package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSON Patch operation codes used by the gateway.
const (
	PatchAdd     = "add"
	PatchRemove  = "remove"
	PatchReplace = "replace"
)

// PatchOperation represents a single JSON Patch operation (RFC 6902).
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// NullPolicy decides what a null member of a merge document turns into.
type NullPolicy int

const (
	// NullDrop skips null members; a field cannot be cleared through a merge.
	NullDrop NullPolicy = iota
	// NullRemove turns a null member into a "remove" operation.
	NullRemove
)

// ParseNullPolicy maps the configuration values "drop" and "remove".
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return NullDrop, nil
	case "remove":
		return NullRemove, nil
	default:
		return NullDrop, fmt.Errorf("unknown null policy %q (want drop or remove)", s)
	}
}

func (p NullPolicy) String() string {
	if p == NullRemove {
		return "remove"
	}
	return "drop"
}

// TranslateMerge converts a flat merge document into JSON Patch operations,
// one "add" per non-null member, in document order. Nested objects are not
// merged: their new value replaces the old one wholesale.
func TranslateMerge(fields Fields, nulls NullPolicy) []PatchOperation {
	ops := make([]PatchOperation, 0, len(fields))
	for _, f := range fields {
		path := "/" + EscapePointer(f.Name)
		if f.IsNull() {
			if nulls == NullRemove {
				ops = append(ops, PatchOperation{Op: PatchRemove, Path: path})
			}
			continue
		}
		ops = append(ops, PatchOperation{Op: PatchAdd, Path: path, Value: f.Value})
	}
	return ops
}

// EscapePointer escapes a member name for use as a JSON Pointer segment
// (RFC 6901).
func EscapePointer(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "~", "~0"), "/", "~1")
}

func UnescapePointer(seg string) string {
	return strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
}

// ApplyJSONPatch applies add, remove and replace operations to a decoded
// resource and returns the patched copy. Array members follow RFC 6902: add
// inserts before the index (or appends for "-"), remove shifts the rest down.
func ApplyJSONPatch(resource map[string]interface{}, patchOps []PatchOperation) (map[string]interface{}, error) {
	result, err := deepCopyMap(resource)
	if err != nil {
		return nil, err
	}

	for i, op := range patchOps {
		value, err := normalizeValue(op.Value)
		if err != nil {
			return nil, fmt.Errorf("patch operation %d (%s): %w", i, op.Op, err)
		}
		switch op.Op {
		case PatchAdd:
			err = patchSet(result, op.Path, value, true)
		case PatchReplace:
			err = patchSet(result, op.Path, value, false)
		case PatchRemove:
			err = patchRemove(result, op.Path)
		default:
			err = fmt.Errorf("unknown patch operation: %s", op.Op)
		}
		if err != nil {
			return nil, fmt.Errorf("patch operation %d (%s) failed: %w", i, op.Op, err)
		}
	}

	return result, nil
}

// ParseJSONPatch parses a JSON Patch document from raw JSON.
func ParseJSONPatch(data []byte) ([]PatchOperation, error) {
	var ops []PatchOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("invalid JSON Patch document: %w", err)
	}
	for i, op := range ops {
		if op.Op == "" {
			return nil, fmt.Errorf("patch operation %d: missing 'op' field", i)
		}
		if op.Path == "" {
			return nil, fmt.Errorf("patch operation %d: missing 'path' field", i)
		}
	}
	return ops, nil
}

func patchSet(doc map[string]interface{}, path string, value interface{}, add bool) error {
	parts, err := splitPointer(path)
	if err != nil {
		return err
	}
	_, err = patchAt(doc, parts, func(parent interface{}, key string) (interface{}, error) {
		switch p := parent.(type) {
		case map[string]interface{}:
			if _, ok := p[key]; !ok && !add {
				return nil, fmt.Errorf("path not found: %s", path)
			}
			p[key] = value
			return p, nil
		case []interface{}:
			if add && key == "-" {
				return append(p, value), nil
			}
			idx, err := arrayIndex(key, len(p), add)
			if err != nil {
				return nil, err
			}
			if !add {
				p[idx] = value
				return p, nil
			}
			p = append(p, nil)
			copy(p[idx+1:], p[idx:])
			p[idx] = value
			return p, nil
		default:
			return nil, fmt.Errorf("cannot set %s on a non-container", path)
		}
	})
	return err
}

func patchRemove(doc map[string]interface{}, path string) error {
	parts, err := splitPointer(path)
	if err != nil {
		return err
	}
	_, err = patchAt(doc, parts, func(parent interface{}, key string) (interface{}, error) {
		switch p := parent.(type) {
		case map[string]interface{}:
			if _, ok := p[key]; !ok {
				return nil, fmt.Errorf("path not found: %s", path)
			}
			delete(p, key)
			return p, nil
		case []interface{}:
			idx, err := arrayIndex(key, len(p), false)
			if err != nil {
				return nil, err
			}
			return append(p[:idx], p[idx+1:]...), nil
		default:
			return nil, fmt.Errorf("cannot remove %s from a non-container", path)
		}
	})
	return err
}

func splitPointer(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path must start with '/': %q", path)
	}
	parts := strings.Split(path[1:], "/")
	for i := range parts {
		parts[i] = UnescapePointer(parts[i])
	}
	return parts, nil
}

// patchAt walks node down to the container holding the last segment of parts
// and applies fn to it. Containers are returned so that arrays that grow or
// shrink are stored back into their parent.
func patchAt(node interface{}, parts []string, fn func(parent interface{}, key string) (interface{}, error)) (interface{}, error) {
	if len(parts) == 1 {
		return fn(node, parts[0])
	}
	seg := parts[0]
	switch c := node.(type) {
	case map[string]interface{}:
		next, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("path not found at segment: %s", seg)
		}
		updated, err := patchAt(next, parts[1:], fn)
		if err != nil {
			return nil, err
		}
		c[seg] = updated
		return c, nil
	case []interface{}:
		idx, err := arrayIndex(seg, len(c), false)
		if err != nil {
			return nil, err
		}
		updated, err := patchAt(c[idx], parts[1:], fn)
		if err != nil {
			return nil, err
		}
		c[idx] = updated
		return c, nil
	default:
		return nil, fmt.Errorf("cannot traverse into non-container at: %s", seg)
	}
}

// arrayIndex parses an RFC 6902 array index. An insert may address the
// position just past the last element.
func arrayIndex(seg string, n int, insert bool) (int, error) {
	idx, err := strconv.Atoi(seg)
	limit := n
	if insert {
		limit = n + 1
	}
	if err != nil || idx < 0 || idx >= limit || (len(seg) > 1 && seg[0] == '0') {
		return 0, fmt.Errorf("invalid array index: %s", seg)
	}
	return idx, nil
}

// normalizeValue turns raw JSON values into their decoded form so patched
// documents hold plain maps, slices and scalars.
func normalizeValue(v interface{}) (interface{}, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		return v, nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopyMap(m map[string]interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
