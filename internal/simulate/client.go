package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Msg)
}

// Client wraps http.Client with the service's routes.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends body as JSON with a fresh Idempotency-Key and decodes the answer
// into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Enqueue queues a player for roles in channel.
func (c *Client) Enqueue(ctx context.Context, p Player, channel string) error {
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, r.String())
	}
	return c.do(ctx, http.MethodPost, "/queue", map[string]any{
		"participant_id": p.ID,
		"name":           p.Name,
		"channel_id":     channel,
		"roles":          roles,
	}, nil)
}

// ReadyCheck sends an accept or decline.
func (c *Client) ReadyCheck(ctx context.Context, participant, checkID string, accept bool) error {
	return c.do(ctx, http.MethodPost, "/ready-check", map[string]any{
		"participant_id": participant,
		"check_id":       checkID,
		"accept":         accept,
	}, nil)
}

// ReportOutcome mirrors the POST /results answer.
type ReportOutcome struct {
	SessionID    string             `json:"session_id"`
	State        model.SessionState `json:"state"`
	Winner       model.Team         `json:"winner"`
	Duplicate    bool               `json:"duplicate"`
	Disputed     bool               `json:"disputed"`
	ScoringError string             `json:"scoring_error,omitempty"`
}

// Report posts a result report.
func (c *Client) Report(ctx context.Context, participant string, win bool) (ReportOutcome, error) {
	var out ReportOutcome
	err := c.do(ctx, http.MethodPost, "/results", map[string]any{
		"participant_id": participant,
		"win":            win,
	}, &out)
	return out, err
}

// Override confirms the contradicting claim of a disputed session.
func (c *Client) Override(ctx context.Context, participant string) error {
	return c.do(ctx, http.MethodPost, "/results/override", map[string]any{"participant_id": participant}, nil)
}

// Sessions lists ongoing sessions.
func (c *Client) Sessions(ctx context.Context) ([]model.GameSession, error) {
	var out []model.GameSession
	err := c.do(ctx, http.MethodGet, "/sessions", nil, &out)
	return out, err
}

// Session fetches one session.
func (c *Client) Session(ctx context.Context, id string) (model.GameSession, error) {
	var out model.GameSession
	err := c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &out)
	return out, err
}

// Leaderboard fetches the top n of role.
func (c *Client) Leaderboard(ctx context.Context, role model.Role, n int) ([]repository.Entry, error) {
	var out []repository.Entry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard/%s?limit=%d", role, n), nil, &out)
	return out, err
}
