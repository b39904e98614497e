package release

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bridgarr/bridgarr/internal/provider"
)

var editionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(EXTENDED)\b`),
	regexp.MustCompile(`(?i)\b(THEATRICAL)\b`),
	regexp.MustCompile(`(?i)\b(UNRATED)\b`),
	regexp.MustCompile(`(?i)\b(UNCUT)\b`),
	regexp.MustCompile(`(?i)\b(DIRECTOR'?S?[ .]?CUT)\b`),
	regexp.MustCompile(`(?i)\b(FINAL[ .]?CUT)\b`),
	regexp.MustCompile(`(?i)\b(SPECIAL[ .]?EDITION)\b`),
	regexp.MustCompile(`(?i)\b(REMASTERED)\b`),
	regexp.MustCompile(`(?i)\b(ANNIVERSARY)\b`),
	regexp.MustCompile(`(?i)\b(COLLECTORS?[ .]?EDITION)\b`),
	regexp.MustCompile(`(?i)\b(CRITERION)\b`),
	regexp.MustCompile(`(?i)\b(IMAX)\b`),
	regexp.MustCompile(`(?i)\b(3D)\b`),
}

// EditionFromNFO extracts a release edition (Extended, Theatrical, ...) from
// NFO text, empty when none is found.
func EditionFromNFO(nfo string) string {
	if nfo == "" {
		return ""
	}

	for _, p := range editionPatterns {
		if m := p.FindStringSubmatch(nfo); m != nil {
			edition := strings.ReplaceAll(strings.ToUpper(m[1]), ".", " ")
			edition = strings.ReplaceAll(edition, "DIRECTORS CUT", "DIRECTOR'S CUT")
			edition = strings.ReplaceAll(edition, "DIRECTORSCUT", "DIRECTOR'S CUT")
			return edition
		}
	}

	return ""
}

// BuildTitle constructs the release titles from provider metadata. The clean
// title is what the search protocol serves (parseable by the media manager);
// the display title additionally carries the hoster label.
//
// Movies: "Title (Year) [EDITION] AUDIO QUALITY [Subs: ...]"
// TV:     "Title SxxEyy AUDIO QUALITY" or "Title Sxx ..." for season packs.
func BuildTitle(link provider.CandidateLink, media provider.MediaType) (display, clean string) {
	parts := []string{link.Title}

	if media == provider.TV && link.Season > 0 {
		if link.Episode > 0 {
			parts = append(parts, fmt.Sprintf("S%02dE%02d", link.Season, link.Episode))
		} else {
			parts = append(parts, fmt.Sprintf("S%02d", link.Season))
		}
	} else if link.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d)", link.Year))
	}

	// Editions only make sense for movies.
	if media != provider.TV {
		if edition := EditionFromNFO(link.NFO); edition != "" {
			parts = append(parts, edition)
		}
	}

	var audio []string
	for i, lang := range link.AudioLang {
		if i == 3 {
			break
		}
		audio = append(audio, NormalizeLanguage(lang))
	}

	// A bare FRENCH tag is the common case and stays implicit.
	switch {
	case len(audio) > 1, len(audio) == 1 && audio[0] != "FRENCH" && audio[0] != "TRUEFRENCH":
		parts = append(parts, strings.Join(audio, "+"))
	case len(audio) == 1 && (audio[0] == "TRUEFRENCH" || audio[0] == "VFF" || audio[0] == "VFQ"):
		parts = append(parts, audio[0])
	}

	parts = append(parts, NormalizeQuality(link.Quality))

	if len(link.Subtitles) > 0 {
		var subs []string
		for i, s := range link.Subtitles {
			if i == 2 {
				break
			}
			subs = append(subs, NormalizeLanguage(s))
		}
		parts = append(parts, fmt.Sprintf("[Subs: %s]", strings.Join(subs, "+")))
	}

	clean = strings.Join(parts, " ")
	display = fmt.Sprintf("%s [%s]", clean, link.Host)

	return display, clean
}
