// Package tmdb searches The Movie Database for titles to add to a watchlist.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stwalsh4118/urnext/internal/models"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	defaultTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when no API key was supplied
var ErrNotConfigured = errors.New("tmdb client not configured")

// Result is a movie or show returned by a search
type Result struct {
	ExternalID  string      `json:"external_id"`
	Title       string      `json:"title"`
	Kind        models.Kind `json:"kind"`
	PosterPath  string      `json:"poster_path"`
	Overview    string      `json:"overview"`
	ReleaseDate string      `json:"release_date,omitempty"`
}

// multiResult is one entry of /search/multi; movies carry title and
// release_date, tv carries name and first_air_date
type multiResult struct {
	ID           int    `json:"id"`
	MediaType    string `json:"media_type"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	PosterPath   string `json:"poster_path"`
	Overview     string `json:"overview"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

type searchResponse struct {
	Results []multiResult `json:"results"`
}

// APIError represents an error returned by the TMDB API
type APIError struct {
	HTTPStatus    int    `json:"-"`
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB API error (status %d, code %d): %s", e.HTTPStatus, e.StatusCode, e.StatusMessage)
}

// Config configures a Client
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client handles all interactions with the TMDB API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new TMDB API client
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether the client has an API key
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Search runs a multi-search and keeps only movies and tv shows
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)
	params.Set("include_adult", "false")
	endpoint := c.baseURL + "/search/multi?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search tmdb: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		switch r.MediaType {
		case "movie":
			results = append(results, Result{
				ExternalID:  strconv.Itoa(r.ID),
				Title:       r.Title,
				Kind:        models.KindMovie,
				PosterPath:  r.PosterPath,
				Overview:    r.Overview,
				ReleaseDate: r.ReleaseDate,
			})
		case "tv":
			results = append(results, Result{
				ExternalID:  strconv.Itoa(r.ID),
				Title:       r.Name,
				Kind:        models.KindShow,
				PosterPath:  r.PosterPath,
				Overview:    r.Overview,
				ReleaseDate: r.FirstAirDate,
			})
		}
	}
	return results, nil
}

// checkResponse checks the HTTP response for errors
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.StatusMessage == "" {
		apiErr.StatusMessage = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
