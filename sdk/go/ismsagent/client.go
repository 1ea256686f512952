package ismsagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the ISMS Agent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Session represents a newly created routing session.
type Session struct {
	SessionID string `json:"session_id"`
	CreatedAt int64  `json:"created_at"`
}

// OperationResult mirrors the router response for a routed request.
type OperationResult struct {
	Status string         `json:"status"`
	Result any            `json:"result"`
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Mode   string         `json:"mode"`
}

// Event is a single session event from the history endpoint.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// OperationRecord is an audit entry returned by the operations endpoint.
type OperationRecord struct {
	SessionID  string `json:"session_id"`
	Request    string `json:"request"`
	Operation  string `json:"operation"`
	ObjectType string `json:"object_type"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	CreatedAt  int64  `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ismsagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the ISMS Agent API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// CreateSession opens a new routing session on the server.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var sess Session
	if err := c.post(ctx, "/api/v1/sessions", nil, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// DeleteSession removes a session and disposes its event stream.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.delete(ctx, path.Join("/api/v1/sessions", sessionID))
}

// RouteOperation submits a natural language request for routing and returns
// the operation result once the fast path or escalation completes.
func (c *Client) RouteOperation(ctx context.Context, sessionID, request string) (OperationResult, error) {
	var result OperationResult
	endpoint := path.Join("/api/v1/sessions", sessionID, "operations")
	payload := map[string]string{"request": request}
	if err := c.post(ctx, endpoint, payload, &result); err != nil {
		return OperationResult{}, err
	}
	return result, nil
}

// EventHistory returns the retained events for a session, oldest first.
func (c *Client) EventHistory(ctx context.Context, sessionID string) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	endpoint := path.Join("/api/v1/sessions", sessionID, "events", "history")
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ClearEventHistory drops the retained events for a session.
func (c *Client) ClearEventHistory(ctx context.Context, sessionID string) error {
	return c.delete(ctx, path.Join("/api/v1/sessions", sessionID, "events", "history"))
}

// ListOperations fetches the latest audit records. A non-positive limit lets
// the server apply its default.
func (c *Client) ListOperations(ctx context.Context, limit int) ([]OperationRecord, error) {
	endpoint := "/api/v1/operations"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var out struct {
		Operations []OperationRecord `json:"operations"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) delete(ctx context.Context, endpoint string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
