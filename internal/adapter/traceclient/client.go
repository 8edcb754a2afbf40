// Package traceclient provides the HTTP client for kicking off crews and
// polling their execution traces.
package traceclient

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

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// DefaultPageSize is the number of events requested per poll.
const DefaultPageSize = 500

// Client talks to the trace server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
}

// NewClient creates a client for the trace server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		pageSize:   DefaultPageSize,
	}
}

// Kickoff starts a crew run and returns its normalized trace id.
func (c *Client) Kickoff(ctx context.Context, crewID string, inputs map[string]string) (string, error) {
	if strings.TrimSpace(crewID) == "" {
		return "", fmt.Errorf("crew_id is required")
	}
	body, err := json.Marshal(domain.KickoffRequest{Inputs: inputs})
	if err != nil {
		return "", fmt.Errorf("failed to marshal kickoff request: %w", err)
	}

	endpoint := c.baseURL + "/v1/crews/" + url.PathEscape(crewID) + "/kickoff"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp domain.KickoffResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("kickoff crew %s: %w", crewID, err)
	}
	traceID := domain.NormalizeTraceID(resp.TraceID)
	if traceID == "" {
		return "", fmt.Errorf("kickoff crew %s: empty trace_id", crewID)
	}
	return traceID, nil
}

// FetchEvents returns the next page of events stored after afterSeq.
func (c *Client) FetchEvents(ctx context.Context, traceID string, afterSeq int64) (domain.PollResponse, error) {
	if traceID == "" {
		return domain.PollResponse{}, domain.ErrEmptyTraceID
	}
	q := url.Values{}
	if afterSeq > 0 {
		q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	}
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	endpoint := c.baseURL + "/v1/traces/" + url.PathEscape(traceID) + "/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PollResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	var resp domain.PollResponse
	if err := c.do(req, &resp); err != nil {
		return domain.PollResponse{}, fmt.Errorf("fetch events for trace %s: %w", traceID, err)
	}
	return resp, nil
}

// AppendEvents posts events on behalf of a crew runtime.
func (c *Client) AppendEvents(ctx context.Context, traceID string, events []domain.ExecutionEvent) (*domain.AppendEventsResponse, error) {
	body, err := json.Marshal(domain.AppendEventsRequest{Events: events})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal events: %w", err)
	}
	endpoint := c.baseURL + "/v1/traces/" + url.PathEscape(traceID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp domain.AppendEventsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("append events for trace %s: %w", traceID, err)
	}
	return &resp, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("trace server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
