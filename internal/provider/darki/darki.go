// Package darki is a thin client for the content provider's JSON API. It
// implements content discovery and link probing against documented
// endpoints with a pre-provisioned session cookie. Session acquisition and
// refresh happen outside this process.
package darki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/provider"
)

type Config struct {
	BaseURL     string
	CookieName  string
	CookieValue string
	Timeout     time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.New("provider"),
	}
}

type titleResult struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Year int    `json:"year"`
	Type string `json:"type"`
}

type linkResult struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Quality   string   `json:"quality"`
	Host      string   `json:"host"`
	Audio     []string `json:"audio"`
	Subtitles []string `json:"subtitles"`
	Size      int64    `json:"size"`
	NFO       string   `json:"nfo"`
	Season    int      `json:"season"`
	Episode   int      `json:"episode"`
	CreatedAt string   `json:"created_at"`
}

// Discover searches titles and collects their candidate links, bounded by
// the query's limits.
func (c *Client) Discover(ctx context.Context, q provider.Query) ([]provider.CandidateLink, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("type", string(q.MediaType))

	var search struct {
		Titles []titleResult `json:"titles"`
	}
	if err := c.get(ctx, "/api/v1/titles/search?"+params.Encode(), &search); err != nil {
		return nil, err
	}

	titles := search.Titles
	if q.MaxTitles > 0 && len(titles) > q.MaxTitles {
		titles = titles[:q.MaxTitles]
	}

	var out []provider.CandidateLink

	for _, t := range titles {
		links, err := c.titleLinks(ctx, t, q)
		if err != nil {
			// One bad title should not sink the whole search.
			c.log.Warn().Int64("title", t.ID).Err(err).Msg("failed to fetch links")
			continue
		}
		out = append(out, links...)
	}

	return out, nil
}

func (c *Client) titleLinks(ctx context.Context, t titleResult, q provider.Query) ([]provider.CandidateLink, error) {
	params := url.Values{}
	if q.Season > 0 {
		params.Set("season", strconv.Itoa(q.Season))
	}
	if q.Episode > 0 {
		params.Set("episode", strconv.Itoa(q.Episode))
	}

	path := fmt.Sprintf("/api/v1/titles/%d/links", t.ID)
	if enc := params.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp struct {
		Links []linkResult `json:"links"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	links := resp.Links
	if q.MaxLinksPerTitle > 0 && len(links) > q.MaxLinksPerTitle {
		links = links[:q.MaxLinksPerTitle]
	}

	out := make([]provider.CandidateLink, 0, len(links))
	for _, l := range links {
		created, _ := time.Parse(time.RFC3339, l.CreatedAt)

		out = append(out, provider.CandidateLink{
			ID:        l.ID,
			TitleID:   t.ID,
			URL:       fmt.Sprintf("%s/links/%d", c.cfg.BaseURL, l.ID),
			Title:     firstNonEmpty(l.Title, t.Name),
			Year:      t.Year,
			Quality:   l.Quality,
			Host:      l.Host,
			AudioLang: l.Audio,
			Subtitles: l.Subtitles,
			Size:      l.Size,
			NFO:       l.NFO,
			Season:    l.Season,
			Episode:   l.Episode,
			CreatedAt: created,
		})
	}

	return out, nil
}

// Probe asks the provider whether a link is still downloadable and resolves
// its current direct URL.
func (c *Client) Probe(ctx context.Context, link provider.CandidateLink) (provider.Probe, error) {
	var resp struct {
		Active bool   `json:"active"`
		URL    string `json:"url"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/links/%d/check", link.ID), &resp); err != nil {
		return provider.Probe{}, err
	}

	return provider.Probe{URL: resp.URL, Active: resp.Active}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return errors.NewProviderError(err, path, false)
	}

	req.Header.Set("Accept", "application/json")
	if c.cfg.CookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.cfg.CookieName, Value: c.cfg.CookieValue})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewProviderError(err, path, true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthError(errors.ErrAuthentication, path)
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewProviderError(errors.ErrDeadLink, path, false)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewProviderError(fmt.Errorf("provider returned %d", resp.StatusCode), path, true)
	case resp.StatusCode != http.StatusOK:
		return errors.NewProviderError(fmt.Errorf("provider returned %d", resp.StatusCode), path, false)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewProviderError(fmt.Errorf("failed to parse provider response: %w", err), path, false)
	}

	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

var (
	_ provider.ContentSource = (*Client)(nil)
	_ provider.Prober        = (*Client)(nil)
)
