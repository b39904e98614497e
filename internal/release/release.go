// Package release turns verified provider candidates into protocol-compliant
// synthetic search results. Ids are a deterministic function of the
// candidate link set, so repeated searches for the same content produce the
// same release and downstream submissions stay idempotent.
package release

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/verifier"
)

// SyntheticRelease is a search-protocol-facing result built from verified
// candidate links. It exists only as a search-response artifact until a
// submission references it.
type SyntheticRelease struct {
	ID           string
	Title        string // clean title, parseable by the media manager
	DisplayTitle string // clean title plus hoster label
	Category     int
	Size         int64
	PubDate      time.Time
	Links        []string // verified direct URLs, stable order
}

// DeriveID computes the stable synthetic identifier for a link set: the
// SHA-256 digest of the sorted, deduplicated URLs. Order-independent; two
// distinct link sets never share an id.
func DeriveID(urls []string) string {
	uniq := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		uniq = append(uniq, u)
	}
	sort.Strings(uniq)

	h := sha256.New()
	for _, u := range uniq {
		h.Write([]byte(u))
		h.Write([]byte{'\n'})
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// groupKey clusters candidates that belong to the same logical release:
// same title, season/episode, quality and hoster. Multi-part uploads of one
// release collapse into a single result with several links.
type groupKey struct {
	titleID int64
	season  int
	episode int
	quality string
	host    string
}

// Synthesize builds releases from verified candidates. Only live candidates
// are passed in; dead and unknown links were already excluded by the
// verifier. The output order and every field are deterministic for a given
// input set.
func Synthesize(q provider.Query, verified []verifier.VerifiedCandidate) []SyntheticRelease {
	groups := make(map[groupKey][]verifier.VerifiedCandidate)

	for _, vc := range verified {
		// For episode searches keep the requested episode and season packs.
		if q.MediaType == provider.TV && q.Episode > 0 {
			if vc.Link.Episode != q.Episode && vc.Link.Episode != 0 {
				continue
			}
		}

		key := groupKey{
			titleID: vc.Link.TitleID,
			season:  vc.Link.Season,
			episode: vc.Link.Episode,
			quality: vc.Link.Quality,
			host:    vc.Link.Host,
		}
		groups[key] = append(groups[key], vc)
	}

	releases := make([]SyntheticRelease, 0, len(groups))

	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			return members[i].Link.ID < members[j].Link.ID
		})

		first := members[0]
		links := make([]string, len(members))
		var size int64
		for i, vc := range members {
			links[i] = vc.URL
			size += ResolveSize(vc.Link, q.MediaType)
		}

		display, clean := BuildTitle(first.Link, q.MediaType)

		pubDate := first.Link.CreatedAt
		if pubDate.IsZero() {
			pubDate = first.CheckedAt
		}

		releases = append(releases, SyntheticRelease{
			ID:           DeriveID(links),
			Title:        clean,
			DisplayTitle: display,
			Category:     CategoryFor(NormalizeQuality(first.Link.Quality), clean, q.MediaType),
			Size:         size,
			PubDate:      pubDate,
			Links:        links,
		})
	}

	sort.Slice(releases, func(i, j int) bool {
		if releases[i].Title != releases[j].Title {
			return releases[i].Title < releases[j].Title
		}
		return releases[i].ID < releases[j].ID
	})

	return releases
}
