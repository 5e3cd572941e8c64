package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/types"
)

// APIError is a non-2xx gateway response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Conflict reports whether the action was not valid in the current status
func (e *APIError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Client talks to a running gateway
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu   sync.Mutex
	etag string
	last *types.Snapshot
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the current snapshot. An unchanged run is answered from the
// last snapshot without re-decoding.
func (c *Client) Status(ctx context.Context) (types.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return types.Snapshot{}, err
	}
	c.mu.Lock()
	if c.etag != "" && c.last != nil {
		req.Header.Set(headerIfNoneMatch, c.etag)
	}
	c.mu.Unlock()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch resp.StatusCode {
	case http.StatusNotModified:
		if c.last == nil {
			return types.Snapshot{}, &APIError{StatusCode: resp.StatusCode, Message: "not modified without a cached snapshot"}
		}
		return *c.last, nil
	case http.StatusOK:
	default:
		return types.Snapshot{}, decodeError(resp)
	}

	var snap types.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("decode status: %w", err)
	}
	c.etag = resp.Header.Get(headerETag)
	snap.Version = ParseETag(c.etag)
	c.last = &snap
	return snap, nil
}

// Approve approves the plan under review with extra context files
func (c *Client) Approve(ctx context.Context, contextFiles []string) (types.Status, error) {
	return c.post(ctx, "/approve", ApproveRequest{ContextFiles: contextFiles})
}

// Reject rejects the plan under review
func (c *Client) Reject(ctx context.Context) (types.Status, error) {
	return c.post(ctx, "/reject", struct{}{})
}

// Feedback asks the planner to revise the plan
func (c *Client) Feedback(ctx context.Context, text string) (types.Status, error) {
	return c.post(ctx, "/feedback", FeedbackRequest{Feedback: text})
}

// UserInput answers the pending question
func (c *Client) UserInput(ctx context.Context, text string) (types.Status, error) {
	return c.post(ctx, "/user_input", UserInputRequest{UserInput: text})
}

func (c *Client) post(ctx context.Context, path string, body any) (types.Status, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var out ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}
	return out.Status, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

// ParseETag recovers a state version from an ETag, or 0 if malformed
func ParseETag(etag string) uint64 {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	v, err := strconv.ParseUint(strings.TrimPrefix(etag, "v"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
