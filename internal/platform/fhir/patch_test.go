package fhir

import (
	"encoding/json"
	"testing"
)

func mustFields(t *testing.T, doc string) Fields {
	t.Helper()
	var fs Fields
	if err := json.Unmarshal([]byte(doc), &fs); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	return fs
}

func TestTranslateMerge_SingleField(t *testing.T) {
	fs := mustFields(t, `{"deceasedDateTime":"2025-08-26T18:00:00Z"}`)

	ops := TranslateMerge(fs, NullDrop)
	got, err := json.Marshal(ops)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"op":"add","path":"/deceasedDateTime","value":"2025-08-26T18:00:00Z"}]`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestTranslateMerge_Empty(t *testing.T) {
	ops := TranslateMerge(mustFields(t, `{}`), NullDrop)
	if len(ops) != 0 {
		t.Fatalf("expected no operations, got %d", len(ops))
	}
	got, _ := json.Marshal(ops)
	if string(got) != "[]" {
		t.Errorf("expected [], got %s", got)
	}
}

func TestTranslateMerge_PreservesOrder(t *testing.T) {
	fs := mustFields(t, `{"gender":"female","active":false,"birthDate":"1990-01-01","telecom":[{"system":"phone","value":"555"}]}`)

	ops := TranslateMerge(fs, NullDrop)
	wantPaths := []string{"/gender", "/active", "/birthDate", "/telecom"}
	if len(ops) != len(wantPaths) {
		t.Fatalf("expected %d ops, got %d", len(wantPaths), len(ops))
	}
	for i, p := range wantPaths {
		if ops[i].Path != p {
			t.Errorf("op %d: expected path %s, got %s", i, p, ops[i].Path)
		}
		if ops[i].Op != PatchAdd {
			t.Errorf("op %d: expected add, got %s", i, ops[i].Op)
		}
	}
	raw, _ := json.Marshal(ops[1])
	if string(raw) != `{"op":"add","path":"/active","value":false}` {
		t.Errorf("false value must be kept, got %s", raw)
	}
}

func TestTranslateMerge_NullDropped(t *testing.T) {
	fs := mustFields(t, `{"gender":null,"birthDate":"1990-01-01"}`)

	ops := TranslateMerge(fs, NullDrop)
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	if ops[0].Path != "/birthDate" {
		t.Errorf("expected /birthDate, got %s", ops[0].Path)
	}
}

func TestTranslateMerge_NullRemoved(t *testing.T) {
	fs := mustFields(t, `{"gender":null,"birthDate":"1990-01-01"}`)

	ops := TranslateMerge(fs, NullRemove)
	got, _ := json.Marshal(ops)
	want := `[{"op":"remove","path":"/gender"},{"op":"add","path":"/birthDate","value":"1990-01-01"}]`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestTranslateMerge_EscapesPointer(t *testing.T) {
	fs := mustFields(t, `{"a/b~c":1}`)
	ops := TranslateMerge(fs, NullDrop)
	if ops[0].Path != "/a~1b~0c" {
		t.Errorf("expected escaped path, got %s", ops[0].Path)
	}
}

func TestParseNullPolicy(t *testing.T) {
	cases := map[string]NullPolicy{"": NullDrop, "drop": NullDrop, "REMOVE": NullRemove}
	for in, want := range cases {
		got, err := ParseNullPolicy(in)
		if err != nil {
			t.Fatalf("ParseNullPolicy(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseNullPolicy(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseNullPolicy("clear"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestApplyJSONPatch_Add(t *testing.T) {
	resource := map[string]interface{}{
		"resourceType": "Patient",
		"id":           "123",
	}

	ops := []PatchOperation{
		{Op: PatchAdd, Path: "/deceasedDateTime", Value: json.RawMessage(`"2025-08-26T18:00:00Z"`)},
	}

	result, err := ApplyJSONPatch(resource, ops)
	if err != nil {
		t.Fatalf("ApplyJSONPatch failed: %v", err)
	}
	if result["deceasedDateTime"] != "2025-08-26T18:00:00Z" {
		t.Errorf("expected deceasedDateTime to be set, got %v", result["deceasedDateTime"])
	}
	// Original should be unchanged
	if _, ok := resource["deceasedDateTime"]; ok {
		t.Error("original resource was modified")
	}
}

func TestApplyJSONPatch_RemoveAndReplace(t *testing.T) {
	resource := map[string]interface{}{
		"resourceType": "Patient",
		"gender":       "male",
		"active":       true,
	}

	ops := []PatchOperation{
		{Op: PatchRemove, Path: "/gender"},
		{Op: PatchReplace, Path: "/active", Value: false},
	}

	result, err := ApplyJSONPatch(resource, ops)
	if err != nil {
		t.Fatalf("ApplyJSONPatch failed: %v", err)
	}
	if _, ok := result["gender"]; ok {
		t.Error("expected gender to be removed")
	}
	if result["active"] != false {
		t.Errorf("expected active=false, got %v", result["active"])
	}
}

func TestApplyJSONPatch_ReplaceMissing(t *testing.T) {
	_, err := ApplyJSONPatch(map[string]interface{}{}, []PatchOperation{
		{Op: PatchReplace, Path: "/gender", Value: "male"},
	})
	if err == nil {
		t.Error("expected error replacing a missing member")
	}
}

func TestParseJSONPatch(t *testing.T) {
	ops, err := ParseJSONPatch([]byte(`[{"op":"add","path":"/x","value":1}]`))
	if err != nil {
		t.Fatalf("ParseJSONPatch: %v", err)
	}
	if len(ops) != 1 || ops[0].Path != "/x" {
		t.Errorf("unexpected ops: %+v", ops)
	}
	if _, err := ParseJSONPatch([]byte(`[{"path":"/x"}]`)); err == nil {
		t.Error("expected error for missing op")
	}
}

func TestApplyJSONPatch_Arrays(t *testing.T) {
	resource := map[string]interface{}{
		"name": []interface{}{
			map[string]interface{}{"family": "Gargano", "given": []interface{}{"Juan"}},
		},
	}

	ops := []PatchOperation{
		{Op: PatchAdd, Path: "/name/0/given/0", Value: "Mateo"},
		{Op: PatchAdd, Path: "/name/0/given/-", Value: "Luis"},
		{Op: PatchAdd, Path: "/name/1", Value: json.RawMessage(`{"family":"Rossi"}`)},
		{Op: PatchReplace, Path: "/name/1/family", Value: "Russo"},
	}
	result, err := ApplyJSONPatch(resource, ops)
	if err != nil {
		t.Fatalf("ApplyJSONPatch failed: %v", err)
	}

	names := result["name"].([]interface{})
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
	given := names[0].(map[string]interface{})["given"].([]interface{})
	if len(given) != 3 || given[0] != "Mateo" || given[1] != "Juan" || given[2] != "Luis" {
		t.Errorf("expected insert then append, got %v", given)
	}
	if names[1].(map[string]interface{})["family"] != "Russo" {
		t.Errorf("unexpected second name %v", names[1])
	}

	result, err = ApplyJSONPatch(result, []PatchOperation{{Op: PatchRemove, Path: "/name/0/given/1"}})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	given = result["name"].([]interface{})[0].(map[string]interface{})["given"].([]interface{})
	if len(given) != 2 || given[0] != "Mateo" || given[1] != "Luis" {
		t.Errorf("expected element removed, got %v", given)
	}
}

func TestApplyJSONPatch_ArrayIndexErrors(t *testing.T) {
	resource := map[string]interface{}{"given": []interface{}{"Juan"}}
	for _, op := range []PatchOperation{
		{Op: PatchAdd, Path: "/given/2", Value: "x"},
		{Op: PatchReplace, Path: "/given/1", Value: "x"},
		{Op: PatchReplace, Path: "/given/-", Value: "x"},
		{Op: PatchRemove, Path: "/given/01"},
	} {
		if _, err := ApplyJSONPatch(resource, []PatchOperation{op}); err == nil {
			t.Errorf("%s %s: expected error", op.Op, op.Path)
		}
	}
}
