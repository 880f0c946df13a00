package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
	"github.com/ehr/fhir-gateway/internal/platform/upstream/upstreamtest"
)

type testPatient struct {
	fhir.Base
	Name      []fhir.HumanName `json:"name,omitempty"`
	BirthDate string           `json:"birthDate,omitempty"`
}

type testEncounter struct {
	fhir.Base
	Status  string          `json:"status,omitempty"`
	Subject *fhir.Reference `json:"subject,omitempty"`
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{BaseURL: baseURL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080/fhir", "ftp://store/fhir", "http:///fhir"} {
		if _, err := NewClient(ClientConfig{BaseURL: raw}); err == nil {
			t.Errorf("expected error for base url %q", raw)
		}
	}
}

func TestGateway_GetByID(t *testing.T) {
	store := upstreamtest.NewStore(t)
	id := store.Put("Patient", map[string]interface{}{
		"name":      []interface{}{map[string]interface{}{"family": "Gargano", "given": []interface{}{"Mateo"}}},
		"birthDate": "2000-01-18",
	})
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	p, err := g.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p == nil {
		t.Fatal("expected patient, got nil")
	}
	if p.ID != id || p.ResourceType != "Patient" {
		t.Errorf("unexpected identity %s/%s", p.ResourceType, p.ID)
	}
	if p.Name[0].Family != "Gargano" {
		t.Errorf("expected family Gargano, got %q", p.Name[0].Family)
	}

	calls := store.Calls()
	if got := calls[0].Header.Get("Accept"); got != "application/fhir+json" {
		t.Errorf("expected fhir Accept header, got %q", got)
	}
	if calls[0].Path != "/fhir/Patient/"+id {
		t.Errorf("unexpected path %q", calls[0].Path)
	}
}

func TestGateway_GetByID_Absent(t *testing.T) {
	store := upstreamtest.NewStore(t)
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	p, err := g.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error for absent resource, got %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil, got %+v", p)
	}
}

func TestGateway_GetByID_Gone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()
	g := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient")

	p, err := g.GetByID(context.Background(), "1")
	if err != nil || p != nil {
		t.Fatalf("expected nil, nil for a deleted resource, got %v, %v", p, err)
	}
}

func TestGateway_GetByID_ServerError(t *testing.T) {
	store := upstreamtest.NewStore(t)
	store.Fail(http.StatusInternalServerError)
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	_, err := g.GetByID(context.Background(), "1")
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", ue.StatusCode)
	}
	if ue.Outcome == nil || ue.Message != "injected failure" {
		t.Errorf("expected OperationOutcome message, got %q", ue.Message)
	}
	if IsNotFound(err) {
		t.Error("500 must not be treated as not found")
	}
}

func TestGateway_GetByID_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Patient","name":"not-an-array"}`))
	}))
	defer srv.Close()
	g := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient")

	_, err := g.GetByID(context.Background(), "1")
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !strings.HasPrefix(ue.Message, "malformed response") {
		t.Errorf("unexpected message %q", ue.Message)
	}
}

func TestGateway_GetByID_WrongType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Encounter","id":"1"}`))
	}))
	defer srv.Close()
	g := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient")

	if _, err := g.GetByID(context.Background(), "1"); err == nil {
		t.Fatal("expected error when the store returns another resource type")
	}
}

func TestGateway_List_Empty(t *testing.T) {
	store := upstreamtest.NewStore(t)
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	list, err := g.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestGateway_List_FollowsPages(t *testing.T) {
	store := upstreamtest.NewStore(t)
	store.PageSize = 2
	for i := 0; i < 5; i++ {
		store.Put("Patient", map[string]interface{}{})
	}
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	list, err := g.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 patients, got %d", len(list))
	}
	for i, p := range list {
		if want := string(rune('1' + i)); p.ID != want {
			t.Errorf("entry %d: expected id %s, got %s", i, want, p.ID)
		}
	}
	if store.CallCount() != 3 {
		t.Errorf("expected 3 page requests, got %d", store.CallCount())
	}
}

func TestGateway_List_StopsAtMaxPages(t *testing.T) {
	store := upstreamtest.NewStore(t)
	store.PageSize = 1
	for i := 0; i < 4; i++ {
		store.Put("Patient", map[string]interface{}{})
	}
	c, err := NewClient(ClientConfig{BaseURL: store.URL(), MaxPages: 2, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}

	list, err := NewGateway[testPatient](c, "Patient").List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 patients from 2 pages, got %d", len(list))
	}
}

func TestGateway_List_IgnoresForeignNextLink(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset",
			"link":[{"relation":"next","url":"http://elsewhere.example/fhir/Patient?page=2"}],
			"entry":[{"resource":{"resourceType":"Patient","id":"1"}}]}`))
	}))
	defer srv.Close()

	list, err := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient").List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || calls != 1 {
		t.Errorf("expected one page and one result, got %d results over %d calls", len(list), calls)
	}
}

func TestGateway_List_SkipsOutcomeEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[
			{"resource":{"resourceType":"OperationOutcome","issue":[{"severity":"warning","code":"processing"}]},"search":{"mode":"outcome"}},
			{"resource":{"resourceType":"Patient","id":"7"},"search":{"mode":"match"}}]}`))
	}))
	defer srv.Close()

	list, err := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient").List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "7" {
		t.Fatalf("expected only Patient/7, got %+v", list)
	}
}

func TestGateway_List_NotABundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Patient","id":"1"}`))
	}))
	defer srv.Close()

	if _, err := NewGateway[testPatient](newTestClient(t, srv.URL), "Patient").List(context.Background()); err == nil {
		t.Fatal("expected malformed response error")
	}
}

func TestGateway_Create(t *testing.T) {
	store := upstreamtest.NewStore(t)
	g := NewGateway[testEncounter](newTestClient(t, store.URL()), "Encounter")

	in := &testEncounter{Status: "planned", Subject: &fhir.Reference{Reference: "Patient/1"}}
	in.ResourceType = "Encounter"

	out, err := g.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if out.Subject == nil || out.Subject.Reference != "Patient/1" {
		t.Errorf("subject not round-tripped: %+v", out.Subject)
	}

	call := store.Calls()[0]
	if call.Method != http.MethodPost || call.Path != "/fhir/Encounter" {
		t.Errorf("unexpected call %s %s", call.Method, call.Path)
	}
	if got := call.Header.Get("Content-Type"); got != "application/fhir+json" {
		t.Errorf("unexpected Content-Type %q", got)
	}
	if got := call.Header.Get("Prefer"); got != "return=representation" {
		t.Errorf("unexpected Prefer %q", got)
	}
}

func TestGateway_Create_FollowsLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Location", "http://"+r.Host+"/Encounter/55/_history/1")
			w.WriteHeader(http.StatusCreated)
		default:
			if r.URL.Path != "/Encounter/55" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"resourceType":"Encounter","id":"55","status":"planned"}`))
		}
	}))
	defer srv.Close()

	in := &testEncounter{Status: "planned"}
	in.ResourceType = "Encounter"
	out, err := NewGateway[testEncounter](newTestClient(t, srv.URL), "Encounter").Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.ID != "55" {
		t.Errorf("expected id 55, got %q", out.ID)
	}
}

func TestGateway_Create_UpstreamRejects(t *testing.T) {
	store := upstreamtest.NewStore(t)
	g := NewGateway[testEncounter](newTestClient(t, store.URL()), "Encounter")

	in := &testEncounter{Status: "planned"}
	in.ResourceType = "Encounter"
	in.ID = "client-chosen"

	_, err := g.Create(context.Background(), in)
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected upstream 400, got %v", err)
	}
	if !strings.Contains(err.Error(), "id must not be supplied") {
		t.Errorf("expected upstream diagnostics in error, got %q", err.Error())
	}
}

func TestGateway_ListByReference(t *testing.T) {
	store := upstreamtest.NewStore(t)
	store.Put("Encounter", map[string]interface{}{"subject": map[string]interface{}{"reference": "Patient/1"}})
	store.Put("Encounter", map[string]interface{}{"subject": map[string]interface{}{"reference": "Patient/2"}})
	store.Put("Encounter", map[string]interface{}{"subject": map[string]interface{}{"reference": "Patient/1"}})
	g := NewGateway[testEncounter](newTestClient(t, store.URL()), "Encounter")

	list, err := g.ListByReference(context.Background(), "subject", "Patient/1")
	if err != nil {
		t.Fatalf("ListByReference: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 encounters, got %d", len(list))
	}
	q, _ := url.ParseQuery(store.Calls()[0].Query)
	if q.Get("subject") != "Patient/1" {
		t.Errorf("expected subject=Patient/1, got %q", store.Calls()[0].Query)
	}

	none, err := g.ListByReference(context.Background(), "subject", "Patient/9")
	if err != nil || len(none) != 0 || none == nil {
		t.Errorf("expected empty non-nil slice, got %#v, %v", none, err)
	}
}

func TestGateway_Patch(t *testing.T) {
	store := upstreamtest.NewStore(t)
	id := store.Put("Patient", map[string]interface{}{"birthDate": "2000-01-18"})
	g := NewGateway[testPatient](newTestClient(t, store.URL()), "Patient")

	ops := fhir.TranslateMerge(fhir.Fields{{Name: "birthDate", Value: json.RawMessage(`"1999-12-31"`)}}, fhir.NullDrop)
	out, err := g.Patch(context.Background(), id, ops)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if out.BirthDate != "1999-12-31" {
		t.Errorf("expected patched birthDate, got %q", out.BirthDate)
	}

	call := store.Calls()[0]
	if got := call.Header.Get("Content-Type"); got != "application/json-patch+json" {
		t.Errorf("unexpected Content-Type %q", got)
	}
	if string(call.Body) != `[{"op":"add","path":"/birthDate","value":"1999-12-31"}]` {
		t.Errorf("unexpected patch body %s", call.Body)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	store := upstreamtest.NewStore(t)
	m := telemetry.NewMetrics("test")
	c, err := NewClient(ClientConfig{BaseURL: store.URL(), Metrics: m, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	NewGateway[testPatient](c, "Patient").GetByID(context.Background(), "1")

	if got := testutilCount(m, http.MethodGet, "Patient", "404"); got != 1 {
		t.Errorf("expected one 404 observation, got %v", got)
	}
}

func TestClient_Ping(t *testing.T) {
	store := upstreamtest.NewStore(t)
	if err := newTestClient(t, store.URL()).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	store.Fail(http.StatusServiceUnavailable)
	if err := newTestClient(t, store.URL()).Ping(context.Background()); StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewGateway[testPatient](newTestClient(t, base), "Patient").GetByID(context.Background(), "1")
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.StatusCode != 0 || ue.Err == nil {
		t.Errorf("expected transport failure with cause, got %+v", ue)
	}
}

func TestIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"http://store/fhir/Patient/123/_history/1", "123"},
		{"http://store/fhir/Patient/123", "123"},
		{"Patient/9/_history/3", "9"},
		{"http://store/fhir/Encounter/1", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := idFromLocation(tt.location, "Patient"); got != tt.want {
			t.Errorf("idFromLocation(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}
