package streaklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Streakline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model. Day fields are YYYY-MM-DD.
type Mission struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Duration    int      `json:"duration"`
	CreatedAt   string   `json:"created_at"`
	CreatedDay  string   `json:"created_day"`
	ExpectedDay string   `json:"expected_day,omitempty"`
	Checks      []string `json:"checks"`
	Completed   bool     `json:"completed"`
	Failed      bool     `json:"failed"`
	CompletedAt string   `json:"completed_at,omitempty"`
	FailedAt    string   `json:"failed_at,omitempty"`
	Board       string   `json:"board"`
}

// BoardSlot is one slot of a mission board.
type BoardSlot struct {
	Ordinal int    `json:"ordinal"`
	Label   string `json:"label"`
	Filled  bool   `json:"filled"`
	Date    string `json:"date,omitempty"`
}

// BoardView is the rendered board for a mission.
type BoardView struct {
	Layout    string      `json:"layout"`
	Duration  int         `json:"duration"`
	Checked   int         `json:"checked"`
	Completed bool        `json:"completed"`
	Failed    bool        `json:"failed"`
	Slots     []BoardSlot `json:"slots"`
}

// MissionDetail is a mission plus its board view.
type MissionDetail struct {
	Mission
	BoardView BoardView `json:"board_view"`
}

// Event represents a log entry.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	OwnerID   string `json:"owner_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`
	Payload   string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// IsCode reports whether err is an APIError carrying the given error code,
// e.g. "already_checked_today" or "mission_failed".
func IsCode(err error, code string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}

// CreateMission starts a new challenge.
func (c *Client) CreateMission(ctx context.Context, title string, duration int) (Mission, error) {
	body := map[string]any{
		"title":    title,
		"duration": duration,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", body, &resp)
	return resp, err
}

// ListMissions returns the caller's missions, reconciled.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var resp struct {
		Missions []Mission `json:"missions"`
	}
	err := c.do(ctx, http.MethodGet, "v0/missions", nil, &resp)
	return resp.Missions, err
}

// GetMission fetches one mission with its board.
func (c *Client) GetMission(ctx context.Context, id string) (MissionDetail, error) {
	var resp MissionDetail
	err := c.do(ctx, http.MethodGet, "v0/missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CheckIn records today's check-in.
func (c *Client) CheckIn(ctx context.Context, id string) (MissionDetail, error) {
	var resp MissionDetail
	err := c.do(ctx, http.MethodPost, "v0/missions/"+url.PathEscape(id)+"/check", nil, &resp)
	return resp, err
}

// DeleteMission removes a mission permanently.
func (c *Client) DeleteMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/missions/"+url.PathEscape(id), nil, nil)
}

// Events returns recent mission events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
