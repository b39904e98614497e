package release

import (
	"strings"

	"github.com/moistari/rls"

	"github.com/bridgarr/bridgarr/internal/provider"
)

// Category is a fixed search-protocol category code. The table must be
// preserved exactly for client compatibility.
type Category struct {
	ID   int
	Name string
}

var (
	MovieCategories = []Category{
		{2000, "Movies"},
		{2010, "Movies/Foreign"},
		{2020, "Movies/Other"},
		{2030, "Movies/SD"},
		{2040, "Movies/HD"},
		{2045, "Movies/UHD"},
		{2050, "Movies/BluRay"},
		{2060, "Movies/3D"},
	}

	TVCategories = []Category{
		{5000, "TV"},
		{5010, "TV/WEB-DL"},
		{5020, "TV/Foreign"},
		{5030, "TV/SD"},
		{5040, "TV/HD"},
		{5045, "TV/UHD"},
		{5070, "TV/Anime"},
	}

	MusicCategories = []Category{
		{3000, "Audio"},
		{3010, "Audio/MP3"},
		{3040, "Audio/Lossless"},
	}
)

// MediaTypeForCategories detects the media type a generic search targets
// from its requested category codes. Music is 3000-range, TV 5000-range,
// movies everything else.
func MediaTypeForCategories(cats []int) provider.MediaType {
	for _, c := range cats {
		if c >= 3000 && c < 4000 {
			return provider.Music
		}
	}
	for _, c := range cats {
		if c >= 5000 && c < 6000 {
			return provider.TV
		}
	}
	return provider.Movie
}

// CategoryFor picks the sub-code for a release from its normalized quality
// and media type. When the provider label carried no usable signal the built
// release title is parsed instead, so categorization never depends on
// provider-specific labels alone.
func CategoryFor(normalizedQuality, title string, media provider.MediaType) int {
	q := strings.ToLower(normalizedQuality)
	if q == "" || q == "webdl-1080p" {
		// Default mapping may hide a real resolution in the title.
		if parsed := rls.ParseString(title); parsed.Resolution != "" {
			q = strings.ToLower(parsed.Source + "-" + parsed.Resolution)
		}
	}

	switch media {
	case provider.Movie:
		switch {
		case strings.Contains(q, "2160"), strings.Contains(q, "uhd"):
			return 2045
		case strings.Contains(q, "remux"), strings.Contains(q, "bluray"):
			return 2050
		case strings.Contains(q, "1080"), strings.Contains(q, "720"):
			return 2040
		case strings.Contains(q, "sd"), strings.Contains(q, "dvd"), strings.Contains(q, "480"):
			return 2030
		default:
			return 2040
		}

	case provider.TV:
		switch {
		case strings.Contains(q, "2160"), strings.Contains(q, "uhd"):
			return 5045
		case strings.Contains(q, "1080"), strings.Contains(q, "720"):
			return 5040
		case strings.Contains(q, "web"):
			return 5010
		default:
			return 5040
		}

	case provider.Music:
		if strings.Contains(q, "flac") || strings.Contains(q, "lossless") || isLossless(title) {
			return 3040
		}
		return 3010
	}

	return 2000
}

func isLossless(title string) bool {
	parsed := rls.ParseString(title)
	for _, a := range parsed.Audio {
		switch strings.ToUpper(a) {
		case "FLAC", "ALAC", "APE":
			return true
		}
	}
	return false
}
