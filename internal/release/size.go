package release

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bridgarr/bridgarr/internal/provider"
)

const (
	gib = 1024 * 1024 * 1024
	mib = 1024 * 1024

	// Provider-reported sizes below this are treated as bogus placeholders.
	minPlausibleSize = 100_000_000
)

var nfoSizePattern = regexp.MustCompile(`(?i)(?:File\s*size|Size)\s*:\s*([\d.,]+)\s*(GiB|GB|Gio|MiB|MB|Mio)`)

// SizeFromNFO extracts the file size from NFO text. Returns 0 when the NFO
// carries no recognizable size line.
func SizeFromNFO(nfo string) int64 {
	m := nfoSizePattern.FindStringSubmatch(nfo)
	if m == nil {
		return 0
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(m[2]) {
	case "GIB", "GB", "GIO":
		return int64(value * gib)
	case "MIB", "MB", "MIO":
		return int64(value * mib)
	}

	return 0
}

// sizeEstimates holds per-quality base sizes in GB: one episode (~45min) and
// one movie (~2h). Calibrated so quality checks on the client side pass.
var sizeEstimates = []struct {
	keyword string
	episode float64
	movie   float64
}{
	{"REMUX UHD", 50.0, 70.0},
	{"REMUX 4K", 50.0, 70.0},
	{"ULTRA HD", 7.0, 15.0},
	{"UHD", 7.0, 15.0},
	{"2160", 6.0, 12.0},
	{"REMUX", 25.0, 40.0},
	{"BLURAY 1080", 4.0, 10.0},
	{"HDLIGHT 1080", 1.5, 4.0},
	{"1080", 2.0, 5.0},
	{"HDLIGHT 720", 0.8, 2.0},
	{"720", 1.0, 2.5},
	{"DVD", 0.7, 1.5},
	{"480", 0.5, 1.2},
}

// EstimateSize produces a deterministic fallback size from the raw quality
// label and media type, used when neither the NFO nor the provider supplies
// a plausible value. Season packs are sized as ten episodes.
func EstimateSize(rawQuality string, media provider.MediaType, seasonPack bool) int64 {
	upper := strings.ToUpper(rawQuality)

	episodeGB, movieGB := 1.5, 4.0
	for _, e := range sizeEstimates {
		if strings.Contains(upper, e.keyword) {
			episodeGB, movieGB = e.episode, e.movie
			break
		}
	}

	var sizeGB float64
	switch media {
	case provider.TV:
		sizeGB = episodeGB
		if seasonPack {
			sizeGB = episodeGB * 10
		}
	case provider.Music:
		sizeGB = 0.5
	default:
		sizeGB = movieGB
	}

	return int64(sizeGB * gib)
}

// ResolveSize picks the size for a candidate: NFO first, then the provider's
// reported value when plausible, then the quality estimate.
func ResolveSize(link provider.CandidateLink, media provider.MediaType) int64 {
	if size := SizeFromNFO(link.NFO); size >= minPlausibleSize {
		return size
	}

	if link.Size >= minPlausibleSize {
		return link.Size
	}

	return EstimateSize(link.Quality, media, media == provider.TV && link.Episode == 0)
}
