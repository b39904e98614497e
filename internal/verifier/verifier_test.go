package verifier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/verifier"
)

// fakeProber scripts per-link probe outcomes and counts attempts.
type fakeProber struct {
	mu       sync.Mutex
	attempts map[int64]int
	probe    func(link provider.CandidateLink, attempt int) (provider.Probe, error)
}

func (f *fakeProber) Probe(_ context.Context, link provider.CandidateLink) (provider.Probe, error) {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[int64]int)
	}
	f.attempts[link.ID]++
	attempt := f.attempts[link.ID]
	f.mu.Unlock()

	return f.probe(link, attempt)
}

func (f *fakeProber) count(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

func TestVerifyVerdicts(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(link provider.CandidateLink, _ int) (provider.Probe, error) {
		switch link.ID {
		case 1:
			return provider.Probe{URL: "https://dl.example/1", Active: true}, nil
		case 2:
			return provider.Probe{Active: false}, nil
		default:
			return provider.Probe{}, errors.NewProviderError(errors.New("timeout"), "check", true)
		}
	}}

	v := verifier.New(prober, time.Second, 2, 0)

	live := v.Verify(context.Background(), provider.CandidateLink{ID: 1})
	assert.Equal(t, verifier.Live, live.Verdict)
	assert.Equal(t, "https://dl.example/1", live.URL)

	dead := v.Verify(context.Background(), provider.CandidateLink{ID: 2})
	assert.Equal(t, verifier.Dead, dead.Verdict)
	assert.Empty(t, dead.URL)

	unknown := v.Verify(context.Background(), provider.CandidateLink{ID: 3})
	assert.Equal(t, verifier.Unknown, unknown.Verdict)
	assert.Equal(t, 2, prober.count(3), "unknown verdicts are retried once")
}

func TestVerifyRetryRecovers(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(_ provider.CandidateLink, attempt int) (provider.Probe, error) {
		if attempt == 1 {
			return provider.Probe{}, errors.NewProviderError(errors.New("flaky"), "check", true)
		}
		return provider.Probe{URL: "https://dl.example/ok", Active: true}, nil
	}}

	v := verifier.New(prober, time.Second, 2, 0)

	vc := v.Verify(context.Background(), provider.CandidateLink{ID: 9})
	assert.Equal(t, verifier.Live, vc.Verdict)
}

func TestVerifyAllKeepsOnlyLive(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(link provider.CandidateLink, _ int) (provider.Probe, error) {
		if link.ID%2 == 0 {
			return provider.Probe{Active: false}, nil
		}
		return provider.Probe{URL: "https://dl.example/live", Active: true}, nil
	}}

	v := verifier.New(prober, time.Second, 3, 0)

	live, err := v.VerifyAll(context.Background(), []provider.CandidateLink{
		{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4},
	})
	require.NoError(t, err)
	assert.Len(t, live, 2)
	for _, vc := range live {
		assert.Equal(t, verifier.Live, vc.Verdict)
	}
}

func TestVerifyAllAbortsOnAuthFailure(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(_ provider.CandidateLink, _ int) (provider.Probe, error) {
		return provider.Probe{}, errors.NewAuthError(errors.ErrAuthentication, "check")
	}}

	v := verifier.New(prober, time.Second, 2, 0)

	_, err := v.VerifyAll(context.Background(), []provider.CandidateLink{{ID: 1}})
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
}

func TestFreshVerdictSkipsReprobe(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(link provider.CandidateLink, _ int) (provider.Probe, error) {
		if link.ID == 2 {
			return provider.Probe{Active: false}, nil
		}
		return provider.Probe{URL: "https://dl.example/live", Active: true}, nil
	}}

	v := verifier.New(prober, time.Second, 2, 10*time.Minute)
	links := []provider.CandidateLink{{ID: 1}, {ID: 2}}

	live, err := v.VerifyAll(context.Background(), links)
	require.NoError(t, err)
	require.Len(t, live, 1)

	// Dead and live verdicts alike are settled for the window.
	live, err = v.VerifyAll(context.Background(), links)
	require.NoError(t, err)
	assert.Len(t, live, 1)
	assert.Equal(t, 1, prober.count(1))
	assert.Equal(t, 1, prober.count(2))
}

func TestCacheDistinguishesSameIDDifferentURL(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(_ provider.CandidateLink, _ int) (provider.Probe, error) {
		return provider.Probe{URL: "https://dl.example/live", Active: true}, nil
	}}

	// Grab payloads number their candidates locally, so two unrelated links
	// can share an id. The cache must not serve one for the other.
	v := verifier.New(prober, time.Second, 2, 10*time.Minute)

	v.Verify(context.Background(), provider.CandidateLink{ID: 1, URL: "https://host/a"})
	v.Verify(context.Background(), provider.CandidateLink{ID: 1, URL: "https://host/b"})

	assert.Equal(t, 2, prober.count(1))
}

func TestZeroFreshnessDisablesCaching(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{probe: func(_ provider.CandidateLink, _ int) (provider.Probe, error) {
		return provider.Probe{URL: "https://dl.example/live", Active: true}, nil
	}}

	v := verifier.New(prober, time.Second, 2, 0)
	links := []provider.CandidateLink{{ID: 1}}

	_, err := v.VerifyAll(context.Background(), links)
	require.NoError(t, err)
	_, err = v.VerifyAll(context.Background(), links)
	require.NoError(t, err)

	assert.Equal(t, 2, prober.count(1))
}

func TestFreshness(t *testing.T) {
	t.Parallel()

	now := time.Now()
	vc := verifier.VerifiedCandidate{CheckedAt: now.Add(-5 * time.Minute)}

	assert.True(t, vc.Fresh(now, 10*time.Minute))
	assert.False(t, vc.Fresh(now, time.Minute))
}
