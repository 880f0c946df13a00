package fhir

import (
	"encoding/json"
)

// Bundle is the upstream searchset container.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// NextURL returns the href of the "next" link, or "" on the last page.
func (b *Bundle) NextURL() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// Matches returns the raw resources of the entries that are search results.
// Entries the server marks as "outcome" (warnings about the search itself) and
// entries without a resource are skipped. A bundle without entries yields an
// empty, non-nil slice.
func (b *Bundle) Matches() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(b.Entry))
	for _, e := range b.Entry {
		if len(e.Resource) == 0 || string(e.Resource) == "null" {
			continue
		}
		if e.Search != nil && e.Search.Mode == "outcome" {
			continue
		}
		out = append(out, e.Resource)
	}
	return out
}
