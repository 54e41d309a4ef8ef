// Package musicapi talks to the upstream music resolver service that turns a
// song identifier into a time-limited stream URL.
package musicapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"syncfm/logger"
)

// ErrStreamResolutionFailed means the upstream answered but had no playable
// URL for the song. Callers should surface it and keep the room running.
var ErrStreamResolutionFailed = errors.New("stream resolution failed")

// Resolver turns a song id into a playable stream URL.
type Resolver interface {
	Resolve(ctx context.Context, songID string) (string, error)
}

// Client is the HTTP client for the upstream music API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// playURLEntry mirrors the upstream playUrl map value. The error field is
// false on success and an error string otherwise, so it stays raw.
type playURLEntry struct {
	URL   string          `json:"url"`
	Error json.RawMessage `json:"error"`
}

type playResponse struct {
	Data struct {
		PlayURL map[string]playURLEntry `json:"playUrl"`
	} `json:"data"`
}

// Resolve fetches the stream URL for a song. The upstream keys its response
// by song id; a missing key, an error entry or an empty URL all mean the
// song is not playable right now.
func (c *Client) Resolve(ctx context.Context, songID string) (string, error) {
	endpoint := fmt.Sprintf("%s/getMusicPlay?songmid=%s", c.baseURL, url.QueryEscape(songID))

	var resp playResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", fmt.Errorf("resolve %s: %w", songID, err)
	}

	entry, ok := resp.Data.PlayURL[songID]
	if !ok {
		return "", fmt.Errorf("resolve %s: %w: no entry for song", songID, ErrStreamResolutionFailed)
	}
	if msg := entryError(entry.Error); msg != "" {
		return "", fmt.Errorf("resolve %s: %w: %s", songID, ErrStreamResolutionFailed, msg)
	}
	if entry.URL == "" {
		return "", fmt.Errorf("resolve %s: %w: empty url", songID, ErrStreamResolutionFailed)
	}

	logger.Debug("stream url resolved", logger.String("songId", songID))
	return entry.URL, nil
}

// entryError extracts the upstream error string; `false` means no error.
func entryError(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Song is one search hit.
type Song struct {
	SongMID  string `json:"songmid"`
	SongName string `json:"songname"`
	Singer   []struct {
		Name string `json:"name"`
	} `json:"singer"`
	AlbumName string `json:"albumname"`
}

type searchResponse struct {
	Response struct {
		Code int `json:"code"`
		Data struct {
			Song struct {
				List []Song `json:"list"`
			} `json:"song"`
		} `json:"data"`
	} `json:"response"`
}

// Search queries the upstream song catalogue by keyword.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]Song, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("%s/getSearchByKey?key=%s&limit=%d", c.baseURL, url.QueryEscape(keyword), limit)

	var resp searchResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	if resp.Response.Code != 0 {
		return nil, fmt.Errorf("search %q: upstream code %d", keyword, resp.Response.Code)
	}
	return resp.Response.Data.Song.List, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
