// Package provider defines the contracts of the external collaborators the
// bridge depends on: content discovery, link probing, title resolution and
// the authenticated session they share. Implementations (page parsing,
// cookie refresh, metadata catalogs) live outside this module.
package provider

import (
	"context"
	"time"
)

// MediaType classifies what kind of content a query targets.
type MediaType string

const (
	Movie MediaType = "movie"
	TV    MediaType = "tv"
	Music MediaType = "music"
)

// Query describes a content-discovery request.
type Query struct {
	Text             string
	MediaType        MediaType
	Season           int // 0 means unspecified
	Episode          int // 0 means unspecified or season pack
	MaxTitles        int
	MaxLinksPerTitle int
}

// CandidateLink is a provider-supplied download link plus the metadata the
// synthesizer needs. Immutable once produced by the discovery collaborator.
type CandidateLink struct {
	ID        int64
	TitleID   int64
	URL       string
	Title     string
	Year      int
	Quality   string // provider's raw quality label
	Host      string // source label (hoster name)
	AudioLang []string
	Subtitles []string
	Size      int64 // provider-reported size estimate in bytes, 0 if unknown
	NFO       string
	Season    int
	Episode   int // 0 means season pack
	CreatedAt time.Time
}

// Probe is the result of a liveness probe against a candidate link.
type Probe struct {
	// URL is the resolved direct download URL, which may differ from the
	// candidate's listing URL.
	URL    string
	Active bool
}

// ContentSource discovers candidate links for a query.
type ContentSource interface {
	Discover(ctx context.Context, q Query) ([]CandidateLink, error)
}

// Prober checks whether a candidate link is still downloadable and resolves
// its direct URL.
type Prober interface {
	Probe(ctx context.Context, link CandidateLink) (Probe, error)
}

// TitleResolver maps external catalog identifiers to canonical titles.
type TitleResolver interface {
	ResolveIMDB(ctx context.Context, imdbID string) (string, error)
	ResolveTMDB(ctx context.Context, tmdbID string, media MediaType) (string, error)
	ResolveTVDB(ctx context.Context, tvdbID string) (string, error)
}

// Session is the opaque authenticated capability consumed by the discovery
// and probing collaborators. Credential material is never inspected here.
type Session interface {
	Valid() bool
	Refresh(ctx context.Context) error
}
