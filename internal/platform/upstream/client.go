// Package upstream talks to the remote FHIR store. A Client owns the
// transport concerns (auth, tracing, metrics, the optional circuit breaker);
// a Gateway gives one resource type a typed view over it.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

const (
	mediaFHIRJSON  = "application/fhir+json"
	mediaJSONPatch = "application/json-patch+json"

	maxBodyBytes = 32 << 20
)

// ClientConfig configures a Client. Only BaseURL is required.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxPages   int
	Tokens     TokenSource
	Breaker    *BreakerConfig
	HTTPClient *http.Client
	Metrics    *telemetry.Metrics
	Logger     zerolog.Logger
}

// Client issues calls against one FHIR store base URL.
type Client struct {
	base     *url.URL
	http     *http.Client
	maxPages int
	tokens   TokenSource
	breaker  *gobreaker.CircuitBreaker[*response]
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse FHIR base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("FHIR base url must be http or https, got %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("FHIR base url has no host: %q", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	c := &Client{
		base:     base,
		http:     hc,
		maxPages: maxPages,
		tokens:   cfg.Tokens,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "upstream").Logger(),
		tracer:   otel.Tracer("github.com/ehr/fhir-gateway/internal/platform/upstream"),
	}
	if cfg.Breaker != nil {
		c.breaker = newBreaker(*cfg.Breaker, c.logger)
	}
	return c, nil
}

// BaseURL returns the store's base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) resourceURL(resourceType string, segments ...string) string {
	u := *c.base
	u.Path = strings.Join(append([]string{u.Path, resourceType}, segments...), "/")
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

// Read fetches one resource. A 404 or 410 from the store returns nil, nil.
func (c *Client) Read(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, resourceType, c.resourceURL(resourceType, id), "", nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.body, nil
}

// Create POSTs body and returns the persisted representation. Stores that
// answer 201 with an empty body are followed through their Location header.
func (c *Client) Create(ctx context.Context, resourceType string, body []byte) (json.RawMessage, error) {
	target := c.resourceURL(resourceType)
	resp, err := c.do(ctx, http.MethodPost, resourceType, target, mediaFHIRJSON, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.body)) > 0 {
		return resp.body, nil
	}

	id := idFromLocation(resp.header.Get("Location"), resourceType)
	if id == "" {
		return nil, malformed(http.MethodPost, target, resp.status, errors.New("empty body and no usable Location header"))
	}
	created, err := c.Read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, malformed(http.MethodGet, c.resourceURL(resourceType, id), http.StatusNotFound, errors.New("created resource not readable"))
	}
	return created, nil
}

// Patch sends ops as an RFC 6902 document and returns the updated resource.
func (c *Client) Patch(ctx context.Context, resourceType, id string, ops []fhir.PatchOperation) (json.RawMessage, error) {
	if ops == nil {
		ops = []fhir.PatchOperation{}
	}
	body, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPatch, resourceType, c.resourceURL(resourceType, id), mediaJSONPatch, body)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Search runs a type-level search and returns every matching entry across
// pages. Paging stops after MaxPages, or when a next link leaves the store's
// host.
func (c *Client) Search(ctx context.Context, resourceType string, params url.Values) ([]json.RawMessage, error) {
	target := c.resourceURL(resourceType)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	out := []json.RawMessage{}
	for page := 0; page < c.maxPages && target != ""; page++ {
		resp, err := c.do(ctx, http.MethodGet, resourceType, target, "", nil)
		if err != nil {
			return nil, err
		}
		var bundle fhir.Bundle
		if err := json.Unmarshal(resp.body, &bundle); err != nil {
			return nil, malformed(http.MethodGet, target, resp.status, err)
		}
		if bundle.ResourceType != "Bundle" {
			return nil, malformed(http.MethodGet, target, resp.status, fmt.Errorf("expected Bundle, got %q", bundle.ResourceType))
		}
		out = append(out, bundle.Matches()...)
		target = c.sameHost(bundle.NextURL())
	}
	if target != "" {
		c.logger.Warn().Str("resource_type", resourceType).Int("max_pages", c.maxPages).Msg("search truncated at page limit")
	}
	return out, nil
}

func (c *Client) sameHost(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		u = c.base.ResolveReference(u)
	}
	if !strings.EqualFold(u.Host, c.base.Host) {
		c.logger.Warn().Str("next", next).Msg("ignoring next link to a different host")
		return ""
	}
	return u.String()
}

// Ping reads the store's CapabilityStatement.
func (c *Client) Ping(ctx context.Context) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/metadata"
	resp, err := c.do(ctx, http.MethodGet, "metadata", u.String(), "", nil)
	if err != nil {
		return err
	}
	var meta fhir.Base
	if err := json.Unmarshal(resp.body, &meta); err != nil {
		return malformed(http.MethodGet, u.String(), resp.status, err)
	}
	if meta.ResourceType != "CapabilityStatement" {
		return malformed(http.MethodGet, u.String(), resp.status, fmt.Errorf("expected CapabilityStatement, got %q", meta.ResourceType))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, resourceType, target, contentType string, body []byte) (*response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, method, resourceType, target, contentType, body)
	}
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, resourceType, target, contentType, body)
	})
	if err != nil && isBreakerRejection(err) {
		return nil, &Error{
			Method:     method,
			URL:        target,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "circuit breaker open",
			Err:        err,
		}
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, resourceType, target, contentType string, body []byte) (*response, error) {
	ctx, span := c.tracer.Start(ctx, "fhir "+method+" "+resourceType,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
			attribute.String("fhir.resource_type", resourceType),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, method, target, contentType, body)
	status := 0
	if resp != nil {
		status = resp.status
	}
	c.metrics.ObserveUpstream(method, resourceType, status, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !IsNotFound(err) {
			c.logger.Warn().Err(err).
				Str("method", method).
				Str("url", target).
				Int("status", status).
				Msg("FHIR store call failed")
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", mediaFHIRJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &Error{Method: method, URL: target, Message: "obtain access token", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return &response{status: httpResp.StatusCode}, &Error{Method: method, URL: target, StatusCode: httpResp.StatusCode, Message: "read response body", Err: err}
	}
	resp := &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, responseError(method, target, httpResp.StatusCode, data)
	}
	return resp, nil
}

// idFromLocation pulls the logical id out of a Location header such as
// "http://store/fhir/Patient/123/_history/1".
func idFromLocation(location, resourceType string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 2; i >= 0; i-- {
		if segments[i] == resourceType {
			return segments[i+1]
		}
	}
	return ""
}
