package release

import "strings"

// qualityTable maps the provider's raw quality labels to scene-style quality
// names the media managers parse. Unlisted labels fall through to keyword
// heuristics in NormalizeQuality.
var qualityTable = map[string]string{
	// 2160p / UHD
	"ULTRA HD (x265)":      "Bluray-2160p",
	"ULTRA HD":             "Bluray-2160p",
	"UHD (x265)":           "Bluray-2160p",
	"UHD":                  "Bluray-2160p",
	"Ultra HDLight (x265)": "WEBDL-2160p",
	"Ultra HDLight":        "WEBDL-2160p",
	"REMUX UHD":            "Bluray-2160p Remux",
	"REMUX 4K":             "Bluray-2160p Remux",
	"REMUX BLURAY 2160p":   "Bluray-2160p Remux",
	"4K":                   "WEBDL-2160p",
	"2160p":                "WEBDL-2160p",

	// 1080p remux
	"REMUX BLURAY": "Bluray-1080p Remux",
	"REMUX":        "Bluray-1080p Remux",
	"REMUX 1080p":  "Bluray-1080p Remux",

	// 1080p bluray
	"Bluray 1080p": "Bluray-1080p",
	"Bluray":       "Bluray-1080p",
	"BDRip 1080p":  "Bluray-1080p",
	"BRRip 1080p":  "Bluray-1080p",

	// 1080p web
	"HDLight 1080p (x265)": "WEBDL-1080p",
	"HDLight 1080p":        "WEBDL-1080p",
	"WEB 1080p":            "WEBDL-1080p",
	"WEB-DL 1080p":         "WEBDL-1080p",
	"WEBDL 1080p":          "WEBDL-1080p",
	"WEBRip 1080p":         "WEBRip-1080p",
	"1080p":                "WEBDL-1080p",

	// 720p
	"Bluray 720p":         "Bluray-720p",
	"HDLight 720p (x265)": "WEBDL-720p",
	"HDLight 720p":        "WEBDL-720p",
	"WEB-DL 720p":         "WEBDL-720p",
	"WEBRip 720p":         "WEBRip-720p",
	"720p":                "WEBDL-720p",

	// SD and broadcast
	"DVDRIP":     "DVD",
	"DVDRip":     "DVD",
	"DVD":        "DVD",
	"HDTV 1080p": "HDTV-1080p",
	"HDTV 720p":  "HDTV-720p",
	"HDTV":       "HDTV-1080p",

	// 3D
	"Blu-Ray 3D": "Bluray-1080p",
	"REMUX 3D":   "Bluray-1080p Remux",

	// Other
	"ISO":   "BR-DISK",
	"Autre": "WEBDL-1080p",
}

// NormalizeQuality maps a provider quality label to a scene-style quality
// name. Deterministic: exact table match first, then keyword heuristics,
// defaulting to WEBDL-1080p.
func NormalizeQuality(raw string) string {
	if raw == "" || raw == "Unknown" {
		return "WEBDL-1080p"
	}

	if q, ok := qualityTable[raw]; ok {
		return q
	}

	lower := strings.ToLower(raw)

	var resolution string
	switch {
	case strings.Contains(lower, "2160"), strings.Contains(lower, "4k"),
		strings.Contains(lower, "uhd"), strings.Contains(lower, "ultra hd"):
		resolution = "2160p"
	case strings.Contains(lower, "1080"):
		resolution = "1080p"
	case strings.Contains(lower, "720"):
		resolution = "720p"
	case strings.Contains(lower, "480"), strings.Contains(lower, "sd"):
		resolution = "480p"
	default:
		resolution = "1080p"
	}

	switch {
	case strings.Contains(lower, "remux"):
		return "Bluray-" + resolution + " Remux"
	case strings.Contains(lower, "bluray"), strings.Contains(lower, "bdrip"), strings.Contains(lower, "brrip"):
		return "Bluray-" + resolution
	case strings.Contains(lower, "webrip"):
		return "WEBRip-" + resolution
	case strings.Contains(lower, "hdtv"):
		return "HDTV-" + resolution
	case strings.Contains(lower, "dvd"):
		return "DVD"
	default:
		return "WEBDL-" + resolution
	}
}

// languageTable maps provider language names to scene naming.
var languageTable = map[string]string{
	"French":          "FRENCH",
	"TrueFrench":      "TRUEFRENCH",
	"VFF":             "VFF",
	"VFQ":             "VFQ",
	"VFI":             "VFI",
	"VF2":             "VF2",
	"English":         "ENGLISH",
	"German":          "GERMAN",
	"Spanish":         "SPANISH",
	"Italian":         "ITALIAN",
	"Portuguese":      "PORTUGUESE",
	"Russian":         "RUSSIAN",
	"Japanese":        "JAPANESE",
	"Korean":          "KOREAN",
	"Chinese":         "CHINESE",
	"Arabic":          "ARABIC",
	"Hindi":           "HINDI",
	"French (Canada)": "VFQ",
	"MULTI":           "MULTI",
	"MULTi":           "MULTI",
}

// NormalizeLanguage maps a provider language name to its scene form.
func NormalizeLanguage(lang string) string {
	if scene, ok := languageTable[lang]; ok {
		return scene
	}
	return strings.ReplaceAll(strings.ToUpper(lang), " ", "")
}
