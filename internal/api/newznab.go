package api

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/release"
)

const payloadMetaType = "x-bridgarr-payload"

// newznabError is the indexer protocol's error convention.
type newznabError struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type newznabAttr struct {
	XMLName xml.Name `xml:"newznab:attr"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type rssItem struct {
	XMLName   xml.Name      `xml:"item"`
	Title     string        `xml:"title"`
	GUID      rssGUID       `xml:"guid"`
	Link      string        `xml:"link"`
	Category  string        `xml:"category"`
	PubDate   string        `xml:"pubDate"`
	Enclosure rssEnclosure  `xml:"enclosure"`
	Attrs     []newznabAttr `xml:"newznab:attr"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Newznab string     `xml:"xmlns:newznab,attr"`
	Channel rssChannel `xml:"channel"`
}

func (s *Server) handleNewznab(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t := q.Get("t")

	if t == "caps" {
		s.writeCaps(w)
		return
	}

	if !s.authorized(r) {
		writeXML(w, http.StatusOK, newznabError{Code: 100, Description: "Incorrect user credentials"})
		return
	}

	switch t {
	case "search", "movie", "tvsearch", "music":
		s.handleSearch(w, r, t)
	case "get":
		s.handleGetNZB(w, r)
	default:
		writeXML(w, http.StatusOK, newznabError{Code: 202, Description: "No such function"})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, t string) {
	q := r.URL.Query()

	media := mediaForSearchType(t, q.Get("cat"))

	query := provider.Query{
		Text:             strings.TrimSpace(q.Get("q")),
		MediaType:        media,
		Season:           atoi(q.Get("season")),
		Episode:          atoi(q.Get("ep")),
		MaxTitles:        s.opts.SearchLimit.MaxTitles,
		MaxLinksPerTitle: s.opts.SearchLimit.MaxLinksPerTitle,
	}

	// ID-based lookups are resolved to canonical titles first. Unresolvable
	// ids degrade to the connectivity-test response, never a protocol fault.
	if query.Text == "" {
		query.Text = s.resolveIDs(r, media)
	}

	if query.Text == "" {
		s.writeRSS(w, r, testItems(media))
		return
	}

	releases, err := s.search(r, query)
	if err != nil {
		s.log.Error().Str("q", query.Text).Err(err).Msg("search failed")
		writeXML(w, http.StatusOK, newznabError{Code: 900, Description: "Search temporarily unavailable"})
		return
	}

	s.writeRSS(w, r, s.releaseItems(r, releases))
}

func (s *Server) search(r *http.Request, query provider.Query) ([]release.SyntheticRelease, error) {
	ctx := r.Context()

	candidates, err := s.source.Discover(ctx, query)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.VerifyAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	return release.Synthesize(query, verified), nil
}

func (s *Server) resolveIDs(r *http.Request, media provider.MediaType) string {
	if s.resolver == nil {
		return ""
	}

	q := r.URL.Query()
	ctx := r.Context()

	var (
		title string
		err   error
	)

	switch {
	case q.Get("imdbid") != "":
		title, err = s.resolver.ResolveIMDB(ctx, q.Get("imdbid"))
	case q.Get("tmdbid") != "":
		title, err = s.resolver.ResolveTMDB(ctx, q.Get("tmdbid"), media)
	case q.Get("tvdbid") != "":
		title, err = s.resolver.ResolveTVDB(ctx, q.Get("tvdbid"))
	default:
		return ""
	}

	if err != nil {
		s.log.Warn().Err(err).Msg("id resolution failed, answering in test mode")
		return ""
	}

	return title
}

func (s *Server) releaseItems(r *http.Request, releases []release.SyntheticRelease) []rssItem {
	items := make([]rssItem, 0, len(releases))
	for _, rel := range releases {
		items = append(items, s.item(r, rel))
	}

	return items
}

func (s *Server) item(r *http.Request, rel release.SyntheticRelease) rssItem {
	nzbURL := fmt.Sprintf("%s/getnzb?id=%s&payload=%s&apikey=%s",
		baseURL(r), rel.ID, url.QueryEscape(release.EncodePayload(rel.Payload())), url.QueryEscape(s.opts.APIKey))

	pubDate := rel.PubDate
	if pubDate.IsZero() {
		pubDate = time.Now()
	}

	return rssItem{
		Title:    rel.Title,
		GUID:     rssGUID{IsPermaLink: false, Value: rel.ID},
		Link:     nzbURL,
		Category: strconv.Itoa(rel.Category),
		PubDate:  pubDate.UTC().Format(time.RFC1123Z),
		Enclosure: rssEnclosure{
			URL:    nzbURL,
			Length: rel.Size,
			Type:   "application/x-nzb",
		},
		Attrs: []newznabAttr{
			{Name: "category", Value: strconv.Itoa(rel.Category)},
			{Name: "size", Value: strconv.FormatInt(rel.Size, 10)},
			{Name: "guid", Value: rel.ID},
		},
	}
}

func (s *Server) writeRSS(w http.ResponseWriter, r *http.Request, items []rssItem) {
	doc := rssDoc{
		Version: "2.0",
		Newznab: "http://www.newznab.com/DTD/2010/feeds/attributes/",
		Channel: rssChannel{
			Title:       "bridgarr",
			Description: "bridgarr indexer",
			Items:       items,
		},
	}

	writeXML(w, http.StatusOK, doc)
}

// handleGetNZB emits a minimal NZB-shaped document whose head metadata
// carries the retrieval payload, so the queue surface can accept the grab
// without another provider round trip.
func (s *Server) handleGetNZB(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeXML(w, http.StatusOK, newznabError{Code: 100, Description: "Incorrect user credentials"})
		return
	}

	encoded := r.URL.Query().Get("payload")

	p, err := release.DecodePayload(encoded)
	if err != nil {
		writeXML(w, http.StatusOK, newznabError{Code: 300, Description: "No such item"})
		return
	}

	w.Header().Set("Content-Type", "application/x-nzb")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Title+".nzb"))
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, buildNZB(p, encoded))
}

func buildNZB(p release.Payload, encoded string) string {
	var b strings.Builder

	b.WriteString(xml.Header)
	b.WriteString(`<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">` + "\n")
	b.WriteString(`<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">` + "\n")
	b.WriteString(" <head>\n")
	fmt.Fprintf(&b, "  <meta type=\"title\">%s</meta>\n", xmlEscape(p.Title))
	fmt.Fprintf(&b, "  <meta type=\"category\">%d</meta>\n", p.Category)
	fmt.Fprintf(&b, "  <meta type=%q>%s</meta>\n", payloadMetaType, encoded)
	b.WriteString(" </head>\n")
	fmt.Fprintf(&b, " <file poster=\"bridgarr\" date=\"%d\" subject=%q>\n", time.Now().Unix(), xmlEscape(p.Title))
	b.WriteString("  <groups><group>alt.binaries.bridgarr</group></groups>\n")
	fmt.Fprintf(&b, "  <segments><segment bytes=\"%d\" number=\"1\">%s@bridgarr</segment></segments>\n", len(encoded), p.ID)
	b.WriteString(" </file>\n")
	b.WriteString("</nzb>\n")

	return b.String()
}

type capsSubcat struct {
	XMLName xml.Name `xml:"subcat"`
	ID      int      `xml:"id,attr"`
	Name    string   `xml:"name,attr"`
}

type capsCategory struct {
	XMLName xml.Name     `xml:"category"`
	ID      int          `xml:"id,attr"`
	Name    string       `xml:"name,attr"`
	Subcats []capsSubcat `xml:"subcat"`
}

// capsTree turns a flat category table into its root plus subcategories.
func capsTree(cats []release.Category) capsCategory {
	root := capsCategory{ID: cats[0].ID, Name: cats[0].Name}
	for _, c := range cats[1:] {
		root.Subcats = append(root.Subcats, capsSubcat{ID: c.ID, Name: c.Name})
	}

	return root
}

func (s *Server) writeCaps(w http.ResponseWriter) {
	type caps struct {
		XMLName xml.Name `xml:"caps"`
		Server  struct {
			Title   string `xml:"title,attr"`
			Version string `xml:"version,attr"`
		} `xml:"server"`
		Limits struct {
			Max     int `xml:"max,attr"`
			Default int `xml:"default,attr"`
		} `xml:"limits"`
		Searching struct {
			Search struct {
				Available       string `xml:"available,attr"`
				SupportedParams string `xml:"supportedParams,attr"`
			} `xml:"search"`
			TVSearch struct {
				Available       string `xml:"available,attr"`
				SupportedParams string `xml:"supportedParams,attr"`
			} `xml:"tv-search"`
			MovieSearch struct {
				Available       string `xml:"available,attr"`
				SupportedParams string `xml:"supportedParams,attr"`
			} `xml:"movie-search"`
			MusicSearch struct {
				Available       string `xml:"available,attr"`
				SupportedParams string `xml:"supportedParams,attr"`
			} `xml:"music-search"`
		} `xml:"searching"`
		Categories struct {
			Categories []capsCategory `xml:"category"`
		} `xml:"categories"`
	}

	var c caps
	c.Server.Title = "bridgarr"
	c.Server.Version = "1.0"
	c.Limits.Max = 500
	c.Limits.Default = 100
	c.Searching.Search.Available = "yes"
	c.Searching.Search.SupportedParams = "q"
	c.Searching.TVSearch.Available = "yes"
	c.Searching.TVSearch.SupportedParams = "q,tvdbid,season,ep"
	c.Searching.MovieSearch.Available = "yes"
	c.Searching.MovieSearch.SupportedParams = "q,imdbid,tmdbid"
	c.Searching.MusicSearch.Available = "yes"
	c.Searching.MusicSearch.SupportedParams = "q,artist,album"

	c.Categories.Categories = []capsCategory{
		capsTree(release.MovieCategories),
		capsTree(release.TVCategories),
		capsTree(release.MusicCategories),
	}

	writeXML(w, http.StatusOK, c)
}

func mediaForSearchType(t, cats string) provider.MediaType {
	switch t {
	case "movie":
		return provider.Movie
	case "tvsearch":
		return provider.TV
	case "music":
		return provider.Music
	}

	var codes []int
	for _, c := range strings.Split(cats, ",") {
		if n := atoi(c); n > 0 {
			codes = append(codes, n)
		}
	}

	return release.MediaTypeForCategories(codes)
}

// testItems answers the connectivity probe media managers send on an empty
// query. Content is deterministic so repeated probes look identical.
func testItems(media provider.MediaType) []rssItem {
	var (
		title string
		cat   int
		size  int64
	)

	switch media {
	case provider.TV:
		title = "Test Show S01E01 FRENCH 1080p WEB"
		cat = 5040
		size = 1_500_000_000
	case provider.Music:
		title = "Test Artist - Test Album (2020) FLAC"
		cat = 3040
		size = 500_000_000
	default:
		title = "Test Movie (2020) FRENCH 1080p WEB"
		cat = 2040
		size = 4_000_000_000
	}

	return []rssItem{{
		Title:    title,
		GUID:     rssGUID{Value: "test-" + string(media)},
		Category: strconv.Itoa(cat),
		PubDate:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC1123Z),
		Enclosure: rssEnclosure{
			URL:    "http://localhost/getnzb?id=test",
			Length: size,
			Type:   "application/x-nzb",
		},
		Attrs: []newznabAttr{
			{Name: "category", Value: strconv.Itoa(cat)},
			{Name: "size", Value: strconv.FormatInt(size, 10)},
		},
	}}
}

func writeXML(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(body)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + r.Host
}

func xmlEscape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
