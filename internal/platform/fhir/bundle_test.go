package fhir

import (
	"encoding/json"
	"testing"
)

func TestBundle_Matches(t *testing.T) {
	doc := `{
		"resourceType": "Bundle",
		"type": "searchset",
		"total": 3,
		"link": [{"relation":"self","url":"http://x/fhir/Patient"},{"relation":"next","url":"http://x/fhir?page=2"}],
		"entry": [
			{"resource": {"resourceType":"Patient","id":"1"}, "search": {"mode":"match"}},
			{"resource": {"resourceType":"OperationOutcome","issue":[]}, "search": {"mode":"outcome"}},
			{"fullUrl": "http://x/fhir/Patient/2"},
			{"resource": {"resourceType":"Patient","id":"3"}}
		]
	}`
	var b Bundle
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	matches := b.Matches()
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if b.NextURL() != "http://x/fhir?page=2" {
		t.Errorf("unexpected next url %q", b.NextURL())
	}
}

func TestBundle_NoEntries(t *testing.T) {
	var b Bundle
	json.Unmarshal([]byte(`{"resourceType":"Bundle","type":"searchset","total":0}`), &b)

	matches := b.Matches()
	if matches == nil || len(matches) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", matches)
	}
	if b.NextURL() != "" {
		t.Errorf("expected no next link")
	}
}
