// Package upstreamtest provides an in-memory FHIR store served over
// httptest, for exercising gateways and services end to end.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Call is one request the store received.
type Call struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Store is a minimal FHIR server. It supports read, create, JSON Patch,
// type-level search with subject/patient/name/birthdate filters, paging and
// the metadata endpoint. Its base URL is URL().
type Store struct {
	server *httptest.Server

	// PageSize splits search results into linked pages when positive.
	PageSize int

	mu        sync.Mutex
	resources map[string]map[string]map[string]interface{}
	nextID    int
	calls     []Call
	failWith  int
}

func NewStore(t testing.TB) *Store {
	s := &Store{resources: map[string]map[string]map[string]interface{}{}}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the FHIR base URL, including the /fhir path.
func (s *Store) URL() string {
	return s.server.URL + "/fhir"
}

// Put seeds a resource and returns its assigned id.
func (s *Store) Put(resourceType string, doc map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(resourceType, doc)
}

// Get returns the stored document, or nil.
func (s *Store) Get(resourceType, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources[resourceType][id]
}

func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Fail makes every following request answer with status and an
// OperationOutcome. Fail(0) restores normal behavior.
func (s *Store) Fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

func (s *Store) insert(resourceType string, doc map[string]interface{}) string {
	s.nextID++
	id := strconv.Itoa(s.nextID)
	doc["resourceType"] = resourceType
	doc["id"] = id
	doc["meta"] = map[string]interface{}{"versionId": "1"}
	if s.resources[resourceType] == nil {
		s.resources[resourceType] = map[string]map[string]interface{}{}
	}
	s.resources[resourceType][id] = doc
	return id
}

func (s *Store) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})

	if s.failWith != 0 {
		writeOutcome(w, s.failWith, fhir.IssueTypeException, "injected failure")
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/fhir"), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "metadata" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"resourceType": "CapabilityStatement",
			"status":       "active",
			"fhirVersion":  "4.0.1",
		})
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.search(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPost:
		s.create(w, r, parts[0], body)
	case len(parts) == 2 && r.Method == http.MethodGet:
		doc, ok := s.resources[parts[0]][parts[1]]
		if !ok {
			writeOutcome(w, http.StatusNotFound, fhir.IssueTypeNotFound, fmt.Sprintf("Resource %s/%s is not known", parts[0], parts[1]))
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 2 && r.Method == http.MethodPatch:
		s.patch(w, r, parts[0], parts[1], body)
	default:
		writeOutcome(w, http.StatusMethodNotAllowed, fhir.IssueTypeNotSupported, "unsupported interaction")
	}
}

func (s *Store) create(w http.ResponseWriter, r *http.Request, resourceType string, body []byte) {
	if r.Header.Get("Content-Type") != "application/fhir+json" {
		writeOutcome(w, http.StatusUnsupportedMediaType, fhir.IssueTypeNotSupported, "expected application/fhir+json")
		return
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		writeOutcome(w, http.StatusBadRequest, fhir.IssueTypeStructure, err.Error())
		return
	}
	if rt, _ := doc["resourceType"].(string); rt != resourceType {
		writeOutcome(w, http.StatusBadRequest, fhir.IssueTypeInvalid, "resourceType does not match endpoint")
		return
	}
	if _, ok := doc["id"]; ok {
		writeOutcome(w, http.StatusBadRequest, fhir.IssueTypeInvalid, "id must not be supplied on create")
		return
	}
	id := s.insert(resourceType, doc)
	w.Header().Set("Location", s.URL()+"/"+resourceType+"/"+id+"/_history/1")
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Store) patch(w http.ResponseWriter, r *http.Request, resourceType, id string, body []byte) {
	if r.Header.Get("Content-Type") != "application/json-patch+json" {
		writeOutcome(w, http.StatusUnsupportedMediaType, fhir.IssueTypeNotSupported, "expected application/json-patch+json")
		return
	}
	doc, ok := s.resources[resourceType][id]
	if !ok {
		writeOutcome(w, http.StatusNotFound, fhir.IssueTypeNotFound, fmt.Sprintf("Resource %s/%s is not known", resourceType, id))
		return
	}
	ops, err := fhir.ParseJSONPatch(body)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, fhir.IssueTypeStructure, err.Error())
		return
	}
	patched, err := fhir.ApplyJSONPatch(doc, ops)
	if err != nil {
		writeOutcome(w, http.StatusUnprocessableEntity, fhir.IssueTypeProcessing, err.Error())
		return
	}
	s.resources[resourceType][id] = patched
	writeJSON(w, http.StatusOK, patched)
}

func (s *Store) search(w http.ResponseWriter, r *http.Request, resourceType string) {
	q := r.URL.Query()
	ids := make([]string, 0, len(s.resources[resourceType]))
	for id := range s.resources[resourceType] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})

	var matches []map[string]interface{}
	for _, id := range ids {
		doc := s.resources[resourceType][id]
		if matchesQuery(doc, q) {
			matches = append(matches, doc)
		}
	}

	page, _ := strconv.Atoi(q.Get("_page"))
	start, end := 0, len(matches)
	if s.PageSize > 0 {
		start = page * s.PageSize
		if start > len(matches) {
			start = len(matches)
		}
		end = start + s.PageSize
		if end > len(matches) {
			end = len(matches)
		}
	}

	bundle := map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "searchset",
		"total":        len(matches),
	}
	if end > start {
		entries := make([]map[string]interface{}, 0, end-start)
		for _, doc := range matches[start:end] {
			entries = append(entries, map[string]interface{}{
				"fullUrl":  s.URL() + "/" + resourceType + "/" + doc["id"].(string),
				"resource": doc,
				"search":   map[string]interface{}{"mode": "match"},
			})
		}
		bundle["entry"] = entries
	}
	if s.PageSize > 0 && end < len(matches) {
		next := r.URL.Query()
		next.Set("_page", strconv.Itoa(page+1))
		bundle["link"] = []map[string]interface{}{
			{"relation": "next", "url": s.URL() + "/" + resourceType + "?" + next.Encode()},
		}
	}
	writeJSON(w, http.StatusOK, bundle)
}

func matchesQuery(doc map[string]interface{}, q map[string][]string) bool {
	for param, values := range q {
		if strings.HasPrefix(param, "_") || len(values) == 0 {
			continue
		}
		want := values[0]
		switch param {
		case "subject", "patient":
			ref, _ := doc[param].(map[string]interface{})
			if got, _ := ref["reference"].(string); got != want {
				return false
			}
		case "birthdate":
			if got, _ := doc["birthDate"].(string); got != want {
				return false
			}
		case "name":
			if !nameMatches(doc, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// nameMatches applies the FHIR string search rule: a case-insensitive prefix
// of any family or given name.
func nameMatches(doc map[string]interface{}, want string) bool {
	want = strings.ToLower(want)
	names, _ := doc["name"].([]interface{})
	for _, n := range names {
		name, _ := n.(map[string]interface{})
		if family, _ := name["family"].(string); strings.HasPrefix(strings.ToLower(family), want) {
			return true
		}
		given, _ := name["given"].([]interface{})
		for _, g := range given {
			if s, _ := g.(string); strings.HasPrefix(strings.ToLower(s), want) {
				return true
			}
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOutcome(w http.ResponseWriter, status int, code, diagnostics string) {
	writeJSON(w, status, fhir.NewOperationOutcome(fhir.IssueSeverityError, code, diagnostics))
}
