package fhir

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Extra holds JSON members of a resource that its Go model does not declare.
// Models keep one so that content the gateway does not inspect reaches the
// upstream store unchanged.
type Extra map[string]json.RawMessage

var knownNames sync.Map // reflect.Type -> map[string]struct{}

// UnmarshalOpen decodes data into known (a pointer to a struct without custom
// JSON methods) and stores every member known does not declare in extra.
// Resources embedding Base also keep data itself.
func UnmarshalOpen(data []byte, known any, extra *Extra) error {
	if err := json.Unmarshal(data, known); err != nil {
		return err
	}
	if r, ok := known.(interface{ setSource([]byte) }); ok {
		r.setSource(data)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	names := jsonNames(reflect.TypeOf(known))
	rest := Extra{}
	for k, v := range all {
		if _, ok := names[k]; !ok {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		rest = nil
	}
	*extra = rest
	return nil
}

// MarshalOpen encodes known and merges extra into the resulting object.
// Declared members win over extra members with the same name.
//
// A resource that was decoded from JSON is written back as that document,
// byte for byte below the top level, with only resourceType and id taken
// from the model. The typed members are a read-only view.
func MarshalOpen(known any, extra Extra) ([]byte, error) {
	if r, ok := known.(interface{ base() Base }); ok {
		if b := r.base(); len(b.source) > 0 {
			return marshalSource(b)
		}
	}
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	names := jsonNames(reflect.TypeOf(known))
	for k, v := range extra {
		if _, declared := names[k]; declared {
			continue
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

func marshalSource(b Base) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b.source, &obj); err != nil {
		return nil, err
	}
	for name, value := range map[string]string{"resourceType": b.ResourceType, "id": b.ID} {
		if value == "" {
			delete(obj, name)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		obj[name] = raw
	}
	return json.Marshal(obj)
}

func jsonNames(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := knownNames.Load(t); ok {
		return cached.(map[string]struct{})
	}
	names := make(map[string]struct{})
	collectNames(t, names)
	knownNames.Store(t, names)
	return names
}

func collectNames(t reflect.Type, names map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectNames(ft, names)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = struct{}{}
	}
}
