package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgarr/bridgarr/internal/api"
	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/registry"
	"github.com/bridgarr/bridgarr/internal/verifier"
)

const testKey = "secret"

// fakeSource serves a fixed candidate set for any query.
type fakeSource struct {
	links []provider.CandidateLink
}

func (f *fakeSource) Discover(_ context.Context, _ provider.Query) ([]provider.CandidateLink, error) {
	return f.links, nil
}

// fakeProber treats links whose URL contains "dead" as gone, everything else
// as live.
type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, link provider.CandidateLink) (provider.Probe, error) {
	if strings.Contains(link.URL, "dead") {
		return provider.Probe{Active: false}, nil
	}
	return provider.Probe{URL: link.URL, Active: true}, nil
}

// stubEngine accepts everything and reports packages as actively downloading.
type stubEngine struct{}

func (stubEngine) Submit(_ context.Context, sub bridge.Submission) ([]bridge.Handle, error) {
	return []bridge.Handle{bridge.Handle(sub.PackageName)}, nil
}

func (stubEngine) Poll(_ context.Context, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
	out := make([]bridge.LinkStatus, len(handles))
	for i, h := range handles {
		out[i] = bridge.LinkStatus{Handle: h, State: bridge.Active, BytesTotal: 100, BytesLoaded: 10}
	}
	return out, nil
}

func (stubEngine) Cancel(_ context.Context, _ bridge.Handle) error { return nil }

func newTestServer(t *testing.T, src provider.ContentSource) (*api.Server, *registry.Registry) {
	t.Helper()

	store, err := registry.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)

	br := bridge.New(stubEngine{}, 1, time.Millisecond)

	reg, err := registry.New(store, br, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	v := verifier.New(fakeProber{}, time.Second, 3, 0)

	srv := api.New(api.Options{
		APIKey:      testKey,
		Listen:      ":0",
		OutputDir:   "/downloads",
		SearchLimit: api.SearchLimits{MaxTitles: 5, MaxLinksPerTitle: 5},
	}, src, nil, v, reg, br)

	return srv, reg
}

func get(t *testing.T, srv *api.Server, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func movieCandidates() []provider.CandidateLink {
	return []provider.CandidateLink{
		{
			ID: 1, TitleID: 10, URL: "https://prov.example/links/1",
			Title: "Some Movie", Year: 2021, Quality: "HDLight 1080p", Host: "1fichier",
			CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: 2, TitleID: 10, URL: "https://prov.example/links/2-dead",
			Title: "Some Movie", Year: 2021, Quality: "Bluray 1080p", Host: "rapidgator",
			CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCapsRequiresNoKey(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/api?t=caps")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<caps>")
	assert.Contains(t, body, `id="2000"`)
	assert.Contains(t, body, `id="5070"`)
	assert.Contains(t, body, `id="3040"`)
}

func TestSearchRejectsBadAPIKey(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/api?t=search&q=whatever&apikey=wrong")
	assert.Contains(t, rec.Body.String(), `code="100"`)
}

func TestEmptyQueryServesTestItems(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/api?t=tvsearch&apikey="+testKey)
	body := rec.Body.String()
	assert.Contains(t, body, "Test Show S01E01")

	// The probe must be deterministic across calls.
	again := get(t, srv, "/api?t=tvsearch&apikey="+testKey)
	assert.Equal(t, body, again.Body.String())
}

func TestMovieSearchSynthesizesResults(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{links: movieCandidates()})

	rec := get(t, srv, "/api?t=movie&q=some+movie&apikey="+testKey)
	body := rec.Body.String()

	// Only the live link survives; the dead one is dropped by verification.
	assert.Contains(t, body, "Some Movie (2021) WEBDL-1080p")
	assert.NotContains(t, body, "Bluray-1080p</title>")
	assert.Contains(t, body, "payload=")
	assert.Contains(t, body, `name="category" value="2040"`)
}

func TestUnknownFunctionAnswers202(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/api?t=nonsense&apikey="+testKey)
	assert.Contains(t, rec.Body.String(), `code="202"`)
}

func TestGetNZBCarriesPayload(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{links: movieCandidates()})

	rec := get(t, srv, "/api?t=movie&q=some+movie&apikey="+testKey)
	nzbURL := extractEnclosureURL(t, rec.Body.String())

	u, err := url.Parse(nzbURL)
	require.NoError(t, err)

	nzb := get(t, srv, "/getnzb?"+u.RawQuery)
	require.Equal(t, http.StatusOK, nzb.Code)
	assert.Equal(t, "application/x-nzb", nzb.Header().Get("Content-Type"))
	assert.Contains(t, nzb.Body.String(), u.Query().Get("payload"))
}

func TestGetNZBRejectsBadKeyAndPayload(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/getnzb?payload=x&apikey=wrong")
	assert.Contains(t, rec.Body.String(), `code="100"`)

	rec = get(t, srv, "/getnzb?payload=garbage&apikey="+testKey)
	assert.Contains(t, rec.Body.String(), `code="300"`)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeSource{})

	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func extractEnclosureURL(t *testing.T, rss string) string {
	t.Helper()

	const marker = `<enclosure url="`
	start := strings.Index(rss, marker)
	require.GreaterOrEqual(t, start, 0, "rss must carry an enclosure")
	start += len(marker)
	end := strings.Index(rss[start:], `"`)
	require.Greater(t, end, 0)

	return strings.ReplaceAll(rss[start:start+end], "&amp;", "&")
}
