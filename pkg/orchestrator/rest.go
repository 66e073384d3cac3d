package orchestrator

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

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// TokenProvider supplies a bearer token for control framework requests.
// Implementations refresh expired tokens transparently.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// Endpoint is the base URL of the control framework API,
	// e.g. "https://orchestrator.example.net".
	Endpoint string

	// Tokens supplies bearer tokens. Optional; requests go out
	// unauthenticated when nil (useful against local test servers).
	Tokens TokenProvider

	// HTTPClient overrides the underlying HTTP client. Optional.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	// Defaults to 60s.
	Timeout time.Duration
}

// RESTClient talks to the control framework over its JSON API.
type RESTClient struct {
	endpoint string
	tokens   TokenProvider
	http     *http.Client
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient builds a client for the control framework at cfg.Endpoint.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("orchestrator: endpoint not configured")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &RESTClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		tokens:   cfg.Tokens,
		http:     hc,
	}, nil
}

type submitPayload struct {
	Name     string             `json:"name"`
	Project  string             `json:"project"`
	SSHKey   string             `json:"ssh_key"`
	LeaseEnd string             `json:"lease_end,omitempty"`
	Topology *topology.Document `json:"topology"`
}

type submitResponse struct {
	SliceID  string             `json:"slice_id"`
	Snapshot *topology.Snapshot `json:"snapshot"`
}

type renewPayload struct {
	LeaseEnd string `json:"lease_end"`
}

// errorBody is the JSON shape the control framework uses for failures.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit implements Client.
func (c *RESTClient) Submit(ctx context.Context, req SubmitRequest) (string, *topology.Snapshot, error) {
	if req.Topology == nil {
		return "", nil, fmt.Errorf("orchestrator submit: nil topology")
	}
	payload := submitPayload{
		Name:     req.Name,
		Project:  req.Project,
		SSHKey:   req.SSHKey,
		Topology: req.Topology,
	}
	if !req.LeaseEnd.IsZero() {
		payload.LeaseEnd = req.LeaseEnd.Format(LeaseTimeLayout)
	}

	util.WithSlice(req.Name).Debug("submitting slice")
	body, err := c.do(ctx, "submit", http.MethodPost, "/slices", payload)
	if err != nil {
		return "", nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, &TransportError{Op: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.SliceID == "" {
		return "", nil, &TransportError{Op: "submit", Err: fmt.Errorf("response missing slice_id")}
	}
	return resp.SliceID, resp.Snapshot, nil
}

// Query implements Client.
func (c *RESTClient) Query(ctx context.Context, sliceID string) (*topology.Snapshot, error) {
	body, err := c.do(ctx, "query", http.MethodGet, "/slices/"+url.PathEscape(sliceID), nil)
	if err != nil {
		return nil, err
	}
	var snap topology.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &TransportError{Op: "query", Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return &snap, nil
}

// Delete implements Client. A slice the orchestrator no longer knows about
// counts as deleted.
func (c *RESTClient) Delete(ctx context.Context, sliceID string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, "/slices/"+url.PathEscape(sliceID), nil)
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// Renew implements Client.
func (c *RESTClient) Renew(ctx context.Context, sliceID string, end time.Time) error {
	payload := renewPayload{LeaseEnd: end.Format(LeaseTimeLayout)}
	_, err := c.do(ctx, "renew", http.MethodPost, "/slices/"+url.PathEscape(sliceID)+"/renew", payload)
	return err
}

// do performs one request and classifies the outcome. Network failures and
// 5xx responses become TransportError; 4xx responses become RejectedError.
func (c *RESTClient) do(ctx context.Context, op, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("orchestrator %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("orchestrator %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("fetch token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		// Server-side trouble; the request may succeed on retry.
		return nil, &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, condense(body))}
	default:
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		if eb.Message == "" {
			eb.Message = condense(body)
		}
		return nil, &RejectedError{Op: op, Status: resp.StatusCode, Code: eb.Code, Reason: eb.Message}
	}
}

// condense flattens a response body into a single error-message line.
func condense(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "(empty response)"
	}
	return s
}
