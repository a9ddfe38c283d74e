// Package api is the HTTP client for the queue server.
package api

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

	"VibeQ/core/errs"
	"VibeQ/model"
)

const identityHeader = "X-Identity"

// AppendRequest mirrors the POST /api/tracks body.
type AppendRequest struct {
	Title           string           `json:"title"`
	Performer       string           `json:"performer"`
	SourceKind      model.SourceKind `json:"sourceKind"`
	Locator         string           `json:"locator"`
	Thumbnail       string           `json:"thumbnail,omitempty"`
	DurationSeconds *int             `json:"durationSeconds,omitempty"`
	Identity        string           `json:"identity"`
}

// Client talks to one server. Every failure is one of the errs values:
// transport problems wrap errs.ErrNetwork.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL such as "http://127.0.0.1:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// EventsURL is the WebSocket URL for change events.
func (c *Client) EventsURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/events"
	return u.String()
}

// ListTracks returns the queue, newest first.
func (c *Client) ListTracks(ctx context.Context) ([]*model.TrackEntry, error) {
	var tracks []*model.TrackEntry
	if err := c.do(ctx, http.MethodGet, "/api/tracks", nil, nil, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// AppendTrack submits a new entry.
func (c *Client) AppendTrack(ctx context.Context, req AppendRequest) (*model.TrackEntry, error) {
	var entry model.TrackEntry
	if err := c.do(ctx, http.MethodPost, "/api/tracks", req, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveTrack deletes an entry owned by identity.
func (c *Client) RemoveTrack(ctx context.Context, id, identity string) error {
	headers := map[string]string{identityHeader: identity}
	return c.do(ctx, http.MethodDelete, "/api/tracks/"+url.PathEscape(id), nil, headers, nil)
}

// NowPlaying returns the current track id, or nil when nothing is playing.
func (c *Client) NowPlaying(ctx context.Context) (*string, error) {
	var resp struct {
		CurrentTrackID *string `json:"currentTrackId"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/now-playing", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.CurrentTrackID, nil
}

// SetNowPlaying overwrites the shared pointer.
func (c *Client) SetNowPlaying(ctx context.Context, trackID string) error {
	body := map[string]string{"trackId": trackID}
	return c.do(ctx, http.MethodPost, "/api/now-playing", body, nil, nil)
}

type errorBody struct {
	Error       string `json:"error"`
	WaitMinutes int    `json:"waitMinutes"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: invalid response: %v", errs.ErrNetwork, err)
		}
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(data, &eb)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", errs.ErrValidation, eb.Error)
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusTooManyRequests:
		return &errs.RateLimitError{WaitMinutes: eb.WaitMinutes}
	default:
		return fmt.Errorf("%w: server returned %d", errs.ErrNetwork, resp.StatusCode)
	}
}
