package release_test

import (
	"testing"

	"github.com/bridgarr/bridgarr/internal/release"
)

func TestNormalizeQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"ULTRA HD (x265)", "Bluray-2160p"},
		{"REMUX BLURAY", "Bluray-1080p Remux"},
		{"HDLight 1080p", "WEBDL-1080p"},
		{"Bluray 720p", "Bluray-720p"},
		{"DVDRip", "DVD"},
		{"ISO", "BR-DISK"},
		{"", "WEBDL-1080p"},
		{"Unknown", "WEBDL-1080p"},
		// Heuristic fallbacks for labels missing from the table.
		{"Super Bluray 2160p Edition", "Bluray-2160p"},
		{"weird webrip 720 thing", "WEBRip-720p"},
		{"some new label", "WEBDL-1080p"},
	}

	for _, tt := range tests {
		if got := release.NormalizeQuality(tt.raw); got != tt.want {
			t.Errorf("NormalizeQuality(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang string
		want string
	}{
		{"French", "FRENCH"},
		{"TrueFrench", "TRUEFRENCH"},
		{"French (Canada)", "VFQ"},
		{"MULTi", "MULTI"},
		{"Swedish", "SWEDISH"},
	}

	for _, tt := range tests {
		if got := release.NormalizeLanguage(tt.lang); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}
