package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// Client is the HTTP CloudTransport used by branch workers.
type Client struct {
	base   string
	branch string
	token  string
	http   *http.Client
}

// NewClient creates an HTTP cloud transport. base is the cloud sync
// endpoint, e.g. "https://cloud.example.com".
func NewClient(base, branch, token string, timeout time.Duration) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		branch: branch,
		token:  token,
		http:   &http.Client{Timeout: timeout},
	}
}

// Ping is a lightweight reachability probe against the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/sync/health", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return &secondary.TransportError{Op: "ping", Err: fmt.Errorf("health returned %s", resp.Status)}
	}
	return nil
}

// Push delivers a batch of change records to the cloud authority.
func (c *Client) Push(ctx context.Context, branch string, batch []*models.ChangeRecord) (*secondary.PushResult, error) {
	req := pushRequest{Branch: branch, Records: make([]changeDTO, len(batch))}
	for i, r := range batch {
		req.Records[i] = toDTO(r)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &secondary.TransportError{Op: "push", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/sync/push", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("push", resp)
	}

	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &secondary.TransportError{Op: "push", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &secondary.PushResult{AcceptedIDs: out.AcceptedIDs}
	for _, rej := range out.Rejected {
		result.Rejected = append(result.Rejected, secondary.RejectedChange{
			ID: rej.ID, Reason: rej.Reason, Permanent: rej.Permanent,
		})
	}
	return result, nil
}

// Pull fetches remote changes this branch has not yet seen.
func (c *Client) Pull(ctx context.Context, branch, cursor string, limit int) (*secondary.PullResult, error) {
	q := url.Values{}
	q.Set("cursor", cursor)
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.do(ctx, http.MethodGet, "/sync/pull?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("pull", resp)
	}

	var out pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &secondary.TransportError{Op: "pull", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &secondary.PullResult{NextCursor: out.NextCursor}
	for _, d := range out.Records {
		result.Records = append(result.Records, fromDTO(d))
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, &secondary.TransportError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Authorization", "Branch "+c.token)
	req.Header.Set("X-Branch-ID", c.branch)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &secondary.TransportError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	var out errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Error != "" {
		return &secondary.TransportError{Op: op, Err: fmt.Errorf("%s: %s", resp.Status, out.Error)}
	}
	return &secondary.TransportError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// Ensure Client implements the interface.
var _ secondary.CloudTransport = (*Client)(nil)
