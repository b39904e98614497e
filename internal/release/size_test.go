package release_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/release"
)

const gib = 1024 * 1024 * 1024

func TestSizeFromNFO(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(8.5*gib), release.SizeFromNFO("Video: x264\nFile size: 8.5 GiB\nDuration: 2h"))
	assert.Equal(t, int64(700*1024*1024), release.SizeFromNFO("Size : 700 MB"))
	gigs := 2.3
	assert.Equal(t, int64(gigs*gib), release.SizeFromNFO("Taille / Size: 2,3 Gio"))
	assert.Zero(t, release.SizeFromNFO("no size in here"))
	assert.Zero(t, release.SizeFromNFO(""))
}

func TestResolveSizePriority(t *testing.T) {
	t.Parallel()

	// NFO beats the provider-reported value.
	link := provider.CandidateLink{
		NFO:     "File size: 4 GiB",
		Size:    9 * gib,
		Quality: "HDLight 1080p",
	}
	assert.Equal(t, int64(4*gib), release.ResolveSize(link, provider.Movie))

	// Plausible provider value beats the estimate.
	link = provider.CandidateLink{Size: 9 * gib, Quality: "HDLight 1080p"}
	assert.Equal(t, int64(9*gib), release.ResolveSize(link, provider.Movie))

	// Bogus provider value falls back to the per-quality estimate.
	link = provider.CandidateLink{Size: 12345, Quality: "HDLight 1080p"}
	assert.Equal(t, int64(4*gib), release.ResolveSize(link, provider.Movie))
}

func TestEstimateSize(t *testing.T) {
	t.Parallel()

	episode := release.EstimateSize("HDLight 1080p", provider.TV, false)
	pack := release.EstimateSize("HDLight 1080p", provider.TV, true)
	assert.Equal(t, 10*episode, pack, "season packs are sized as ten episodes")

	assert.Equal(t, int64(0.5*gib), release.EstimateSize("whatever", provider.Music, false))
	assert.Equal(t, int64(70*gib), release.EstimateSize("REMUX UHD", provider.Movie, false))
}
