package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Gateway is a typed view of one resource type on the store. R is the
// resource model; it must decode from and encode to the store's JSON.
type Gateway[R any] struct {
	client       *Client
	resourceType string
}

func NewGateway[R any](client *Client, resourceType string) *Gateway[R] {
	return &Gateway[R]{client: client, resourceType: resourceType}
}

func (g *Gateway[R]) ResourceType() string {
	return g.resourceType
}

// List returns every resource of this type. A bundle without entries yields
// an empty slice.
func (g *Gateway[R]) List(ctx context.Context) ([]*R, error) {
	return g.Search(ctx, nil)
}

// GetByID returns nil, nil when the store reports the resource absent.
func (g *Gateway[R]) GetByID(ctx context.Context, id string) (*R, error) {
	raw, err := g.client.Read(ctx, g.resourceType, id)
	if err != nil || raw == nil {
		return nil, err
	}
	return g.decode(http.MethodGet, raw)
}

func (g *Gateway[R]) Create(ctx context.Context, r *R) (*R, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", g.resourceType, err)
	}
	raw, err := g.client.Create(ctx, g.resourceType, body)
	if err != nil {
		return nil, err
	}
	return g.decode(http.MethodPost, raw)
}

func (g *Gateway[R]) Search(ctx context.Context, params url.Values) ([]*R, error) {
	entries, err := g.client.Search(ctx, g.resourceType, params)
	if err != nil {
		return nil, err
	}
	out := make([]*R, 0, len(entries))
	for _, raw := range entries {
		if rt := resourceTypeOf(raw); rt != "" && rt != g.resourceType {
			continue
		}
		r, err := g.decode(http.MethodGet, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListByReference searches with field=reference, e.g. subject=Patient/42.
func (g *Gateway[R]) ListByReference(ctx context.Context, field, reference string) ([]*R, error) {
	return g.Search(ctx, url.Values{field: []string{reference}})
}

func (g *Gateway[R]) Patch(ctx context.Context, id string, ops []fhir.PatchOperation) (*R, error) {
	raw, err := g.client.Patch(ctx, g.resourceType, id, ops)
	if err != nil {
		return nil, err
	}
	return g.decode(http.MethodPatch, raw)
}

func (g *Gateway[R]) decode(method string, raw json.RawMessage) (*R, error) {
	target := g.client.resourceURL(g.resourceType)
	if rt := resourceTypeOf(raw); rt != g.resourceType {
		return nil, malformed(method, target, 0, fmt.Errorf("expected %s, got %q", g.resourceType, rt))
	}
	r := new(R)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, malformed(method, target, 0, err)
	}
	return r, nil
}

func resourceTypeOf(raw json.RawMessage) string {
	var b fhir.Base
	if err := json.Unmarshal(raw, &b); err != nil {
		return ""
	}
	return b.ResourceType
}
