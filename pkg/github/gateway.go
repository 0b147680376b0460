package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

const (
	acceptHeader     = "application/vnd.github+json"
	apiVersionHeader = "2022-11-28"
	requestTimeout   = 30 * time.Second
)

// operation is one allow-listed (endpoint pattern, method) pair.
type operation struct {
	pattern *regexp.Regexp
	method  string
}

// allowedOperations is the closed set of requests the gateway will
// dispatch. It bounds the blast radius of credential misuse to exactly
// these operations; adding one is an explicit, auditable change.
var allowedOperations = []operation{
	{regexp.MustCompile(`^/user$`), http.MethodGet},
	{regexp.MustCompile(`^/repos/[^/]+/[^/]+$`), http.MethodGet},
	{regexp.MustCompile(`^/repos/[^/]+/[^/]+/forks$`), http.MethodPost},
	{regexp.MustCompile(`^/repos/[^/]+/[^/]+/pulls$`), http.MethodPost},
	{regexp.MustCompile(`^/repos/[^/]+/[^/]+/git/refs/heads/.+$`), http.MethodDelete},
}

// Result is the uniform outcome of a gateway call. Local validation
// failures, transport failures and remote responses all surface the
// same way: a status code and a decoded body. Callers inspect the
// status; nothing is ever raised across this boundary.
type Result struct {
	Status int
	Body   map[string]any

	raw []byte
}

// Decode unmarshals the raw response body into v.
func (r Result) Decode(v any) error {
	if len(r.raw) == 0 {
		return fmt.Errorf("no response body to decode")
	}
	return json.Unmarshal(r.raw, v)
}

// Message returns the remote error message from the body, if any.
func (r Result) Message() string {
	if msg, ok := r.Body["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := r.Body["error"].(string); ok && msg != "" {
		return msg
	}
	return "unknown error"
}

// Gateway issues allow-listed requests against the GitHub REST API.
// Every request carries the bearer credential and the pinned API
// version header. The gateway performs no retries; a transient failure
// is terminal for that call.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway creates a gateway authenticated with the given token.
func NewGateway(token string) *Gateway {
	return NewGatewayWithBaseURL(token, DefaultBaseURL)
}

// NewGatewayWithBaseURL creates a gateway against a non-default API
// root, used to point tests at a local server.
func NewGatewayWithBaseURL(token, baseURL string) *Gateway {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = requestTimeout

	return &Gateway{
		baseURL: baseURL,
		client:  client,
	}
}

// Call validates (endpoint, method) against the allow-list and, if
// permitted, performs the request. The endpoint is a path relative to
// the API root, e.g. "/repos/org/repo/forks". A nil payload sends no
// body; anything else is sent as JSON.
func (g *Gateway) Call(ctx context.Context, endpoint, method string, payload any) Result {
	if !allowed(endpoint, method) {
		fmt.Printf("Error: endpoint %s with method %s is not allowed\n", endpoint, method)
		return Result{
			Status: http.StatusForbidden,
			Body:   map[string]any{"error": "endpoint not allowed"},
		}
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return transportFailure(fmt.Errorf("failed to encode payload: %w", err))
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return transportFailure(err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		fmt.Printf("API request failed: %v\n", err)
		return transportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := readAll(resp)
	if err != nil {
		fmt.Printf("API request failed: %v\n", err)
		return transportFailure(err)
	}

	return Result{
		Status: resp.StatusCode,
		Body:   decodeBody(raw),
		raw:    raw,
	}
}

// allowed checks the endpoint and method against the operation table.
func allowed(endpoint, method string) bool {
	for _, op := range allowedOperations {
		if op.method == method && op.pattern.MatchString(endpoint) {
			return true
		}
	}
	return false
}

// transportFailure converts a local failure into a synthetic 500 result
// so callers see the same (status, body) shape on every path.
func transportFailure(err error) Result {
	return Result{
		Status: http.StatusInternalServerError,
		Body:   map[string]any{"error": err.Error()},
	}
}

// decodeBody parses a JSON object body; anything else is captured raw.
func decodeBody(raw []byte) map[string]any {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return body
}

func readAll(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return buf.Bytes(), nil
}
