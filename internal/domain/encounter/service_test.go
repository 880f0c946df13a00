package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/domain/identity"
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/upstream"
	"github.com/ehr/fhir-gateway/internal/platform/upstream/upstreamtest"
)

func newTestService(t *testing.T) (*Service, *upstreamtest.Store) {
	t.Helper()
	store := upstreamtest.NewStore(t)
	client, err := upstream.NewClient(upstream.ClientConfig{BaseURL: store.URL(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resolver := resource.NewResolver[identity.Patient](upstream.NewGateway[identity.Patient](client, fhir.ResourcePatient))
	return NewService(upstream.NewGateway[Encounter](client, fhir.ResourceEncounter), resolver, nil, zerolog.Nop()), store
}

func decodeEncounter(t *testing.T, s string) *Encounter {
	t.Helper()
	var e Encounter
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &e
}

func TestCreateEncounter(t *testing.T) {
	svc, store := newTestService(t)
	pid := store.Put("Patient", map[string]interface{}{})

	enc := decodeEncounter(t, `{
		"status": "in-progress",
		"class": {"system": "http://terminology.hl7.org/CodeSystem/v3-ActCode", "code": "AMB"},
		"subject": {"reference": "Patient/`+pid+`"},
		"hospitalization": {"admitSource": {"text": "referral"}}
	}`)
	created, err := svc.Create(context.Background(), enc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ResourceType != "Encounter" || created.ID == "" {
		t.Errorf("unexpected encounter %+v", created.Base)
	}
	if _, ok := created.Extra["hospitalization"]; !ok {
		t.Error("expected undeclared hospitalization to round-trip")
	}

	got, err := svc.GetByID(context.Background(), created.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.Subject.Reference != "Patient/"+pid || got.ResourceType != "Encounter" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestCreateEncounter_ForwardsNestedContent(t *testing.T) {
	svc, store := newTestService(t)
	pid := store.Put("Patient", map[string]interface{}{})

	enc := decodeEncounter(t, `{"id":"mine",`+
		`"meta":{"tag":[{"system":"urn:tags","code":"vip"}],"security":[{"code":"R"}]},`+
		`"status":"planned",`+
		`"class":{"code":"AMB","extension":[{"url":"urn:class","valueString":"c"}]},`+
		`"subject":{"reference":"Patient/`+pid+`","extension":[{"url":"urn:subject","valueBoolean":true}]},`+
		`"period":{"start":"2024-01-01","extension":[{"url":"urn:period","valueDecimal":1.50}]}}`)
	if _, err := svc.Create(context.Background(), enc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var sent map[string]json.RawMessage
	for _, c := range store.Calls() {
		if c.Method == http.MethodPost {
			json.Unmarshal(c.Body, &sent)
		}
	}
	if sent == nil {
		t.Fatal("create was not forwarded")
	}
	if _, ok := sent["id"]; ok {
		t.Error("client id forwarded")
	}
	if string(sent["resourceType"]) != `"Encounter"` {
		t.Errorf("resourceType not filled: %s", sent["resourceType"])
	}
	want := map[string]string{
		"meta":    `{"tag":[{"system":"urn:tags","code":"vip"}],"security":[{"code":"R"}]}`,
		"class":   `{"code":"AMB","extension":[{"url":"urn:class","valueString":"c"}]}`,
		"subject": `{"reference":"Patient/` + pid + `","extension":[{"url":"urn:subject","valueBoolean":true}]}`,
		"period":  `{"start":"2024-01-01","extension":[{"url":"urn:period","valueDecimal":1.50}]}`,
	}
	for member, body := range want {
		if string(sent[member]) != body {
			t.Errorf("%s: expected %s, got %s", member, body, sent[member])
		}
	}
}

func TestCreateEncounter_Validation(t *testing.T) {
	svc, store := newTestService(t)
	pid := store.Put("Patient", map[string]interface{}{})

	tests := []struct {
		name string
		body string
		want error
	}{
		{"wrong type", `{"resourceType":"Observation","status":"planned","class":{"code":"AMB"},"subject":{"reference":"Patient/` + pid + `"}}`, resource.ErrInvalidResourceType},
		{"no subject", `{"status":"planned","class":{"code":"AMB"}}`, resource.ErrMissingPatientReference},
		{"bad reference", `{"status":"planned","class":{"code":"AMB"},"subject":{"reference":"Patient/"}}`, resource.ErrInvalidReferenceFormat},
		{"no status", `{"class":{"code":"AMB"},"subject":{"reference":"Patient/` + pid + `"}}`, resource.MissingField("status")},
		{"no class", `{"status":"planned","subject":{"reference":"Patient/` + pid + `"}}`, resource.MissingField("class")},
		{"unknown patient", `{"status":"planned","class":{"code":"AMB"},"subject":{"reference":"Patient/999"}}`, resource.ErrReferencedPatientNotFound},
		{"unknown patient and no status", `{"class":{"code":"AMB"},"subject":{"reference":"Patient/999"}}`, resource.ErrReferencedPatientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), decodeEncounter(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateEncounter_MessagesMatchFields(t *testing.T) {
	svc, store := newTestService(t)
	pid := store.Put("Patient", map[string]interface{}{})

	_, err := svc.Create(context.Background(), decodeEncounter(t, `{"status":"planned","subject":{"reference":"Patient/`+pid+`"}}`))
	if err == nil || err.Error() != "Encounter class is required" {
		t.Errorf("unexpected error %v", err)
	}
	_, err = svc.Create(context.Background(), decodeEncounter(t, `{"status":"planned","class":{}}`))
	if err == nil || err.Error() != "Encounter must have a valid patient reference" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestListEncountersByPatient(t *testing.T) {
	svc, store := newTestService(t)
	pid := store.Put("Patient", map[string]interface{}{})
	store.Put("Encounter", map[string]interface{}{"status": "finished", "subject": map[string]interface{}{"reference": "Patient/" + pid}})
	store.Put("Encounter", map[string]interface{}{"status": "finished", "subject": map[string]interface{}{"reference": "Patient/77"}})

	list, err := svc.ListByPatient(context.Background(), pid)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 encounter, got %d", len(list))
	}

	before := store.CallCount()
	if _, err := svc.ListByPatient(context.Background(), ""); !errors.Is(err, resource.ErrMissingID) {
		t.Fatalf("expected MissingID, got %v", err)
	}
	if store.CallCount() != before {
		t.Error("empty patient id must not reach the store")
	}
}
