// Package engineapi is the HTTP and stream client for the remote
// financial engine.
//
// All lookups are plain JSON over HTTP. Mutating actions are POSTs
// carrying a client-generated action id; the engine deduplicates on it and
// echoes it back, so a retried request can never double-spend. Structured
// rejections decode into *EngineError.
package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/cache"
	"github.com/skeinlabs/skein/internal/graph"
)

// Client talks to one engine instance.
type Client struct {
	baseURL     string
	httpc       *http.Client
	newActionID func() string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient injects the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithActionIDGenerator overrides the idempotency-key generator. Tests use
// a fixed generator to assert echo behavior.
func WithActionIDGenerator(gen func() string) Option {
	return func(c *Client) { c.newActionID = gen }
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpc:       &http.Client{Timeout: 30 * time.Second},
		newActionID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSnapshot retrieves the full graph state for one run and unit.
func (c *Client) FetchSnapshot(ctx context.Context, run, unit string) (*graph.Snapshot, error) {
	var wire snapshotWire
	q := url.Values{"unit": {unit}}
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(run)+"/snapshot", q, &wire); err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return wire.toDomain(), nil
}

// FetchParticipants retrieves the participant directory.
func (c *Client) FetchParticipants(ctx context.Context, run, unit string) ([]cache.Participant, error) {
	var wire struct {
		Items []participantWire `json:"items"`
	}
	q := url.Values{"unit": {unit}}
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(run)+"/participants", q, &wire); err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}
	out := make([]cache.Participant, 0, len(wire.Items))
	for _, it := range wire.Items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// FetchTrustlines retrieves the credit lines for one unit.
func (c *Client) FetchTrustlines(ctx context.Context, run, unit string) ([]cache.Trustline, error) {
	var wire struct {
		Items []trustlineWire `json:"items"`
	}
	q := url.Values{"unit": {unit}}
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(run)+"/trustlines", q, &wire); err != nil {
		return nil, fmt.Errorf("fetch trustlines: %w", err)
	}
	out := make([]cache.Trustline, 0, len(wire.Items))
	for _, it := range wire.Items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// FetchPaymentTargets retrieves the reachable destinations for a source
// within a hop bound.
func (c *Client) FetchPaymentTargets(ctx context.Context, run, unit, source string, maxHops int) ([]cache.Target, error) {
	var wire struct {
		Items []targetWire `json:"items"`
	}
	q := url.Values{
		"unit":     {unit},
		"source":   {source},
		"max_hops": {strconv.Itoa(maxHops)},
	}
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(run)+"/payment-targets", q, &wire); err != nil {
		return nil, fmt.Errorf("fetch payment targets: %w", err)
	}
	out := make([]cache.Target, 0, len(wire.Items))
	for _, it := range wire.Items {
		out = append(out, cache.Target{PID: it.PID, Hops: it.Hops})
	}
	return out, nil
}

// SendPayment submits a payment.
func (c *Client) SendPayment(ctx context.Context, run string, req PaymentRequest) (ActionAck, error) {
	body := map[string]any{
		"action_id": c.newActionID(),
		"from":      req.From,
		"to":        req.To,
		"unit":      req.Unit,
		"amount":    req.Amount,
	}
	return c.postAction(ctx, run, "/actions/payments", body)
}

// OpenTrustline creates a new credit line.
func (c *Client) OpenTrustline(ctx context.Context, run string, req TrustlineRequest) (ActionAck, error) {
	body := map[string]any{
		"action_id":   c.newActionID(),
		"source":      req.Source,
		"target":      req.Target,
		"unit":        req.Unit,
		"trust_limit": req.Limit,
	}
	return c.postAction(ctx, run, "/actions/trustlines/open", body)
}

// UpdateTrustline changes an existing line's limit.
func (c *Client) UpdateTrustline(ctx context.Context, run string, req TrustlineRequest) (ActionAck, error) {
	body := map[string]any{
		"action_id":   c.newActionID(),
		"source":      req.Source,
		"target":      req.Target,
		"unit":        req.Unit,
		"trust_limit": req.Limit,
	}
	return c.postAction(ctx, run, "/actions/trustlines/update", body)
}

// CloseTrustline closes a line. The engine refuses with a 409 when the
// line still has outstanding reverse usage; the conflict's details carry
// the exact amount.
func (c *Client) CloseTrustline(ctx context.Context, run string, req TrustlineCloseRequest) (ActionAck, error) {
	body := map[string]any{
		"action_id": c.newActionID(),
		"source":    req.Source,
		"target":    req.Target,
		"unit":      req.Unit,
	}
	return c.postAction(ctx, run, "/actions/trustlines/close", body)
}

// RunClearing starts a debt-clearing pass for one unit.
func (c *Client) RunClearing(ctx context.Context, run, unit string) (ActionAck, error) {
	body := map[string]any{
		"action_id": c.newActionID(),
		"unit":      unit,
	}
	return c.postAction(ctx, run, "/actions/clearing", body)
}

func (c *Client) postAction(ctx context.Context, run, path string, body map[string]any) (ActionAck, error) {
	// Decimal amounts serialize as strings so the engine parses them
	// exactly.
	for k, v := range body {
		if d, ok := v.(decimal.Decimal); ok {
			body[k] = d.String()
		}
	}

	var ack ActionAck
	err := c.postJSON(ctx, "/runs/"+url.PathEscape(run)+path, body, &ack)
	if err != nil {
		return ActionAck{}, err
	}
	return ack, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeEngineError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
