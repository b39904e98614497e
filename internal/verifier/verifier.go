// Package verifier checks liveness of candidate download links before they
// are synthesized into search results or handed to the download engine.
package verifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/provider"
)

// Verdict is the outcome of a liveness check.
type Verdict string

const (
	Live    Verdict = "live"
	Dead    Verdict = "dead"
	Unknown Verdict = "unknown"
)

// VerifiedCandidate is a candidate link annotated with a liveness verdict.
// Stale results must be re-verified before use in a new submission.
type VerifiedCandidate struct {
	Link      provider.CandidateLink
	URL       string // resolved direct URL, set only when Live
	Verdict   Verdict
	CheckedAt time.Time
}

// Fresh reports whether the verdict is still inside the freshness window.
func (vc VerifiedCandidate) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(vc.CheckedAt) < window
}

// Verifier probes candidate links with a bounded timeout. Network failures
// map to Unknown, never silently to Live. Settled verdicts are cached for
// the freshness window so a grab arriving right after a search does not
// re-probe the same links.
type Verifier struct {
	prober      provider.Prober
	timeout     time.Duration
	maxParallel int
	freshness   time.Duration

	mu   sync.Mutex
	seen map[string]VerifiedCandidate

	log zerolog.Logger
}

func New(prober provider.Prober, timeout time.Duration, maxParallel int, freshness time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxParallel <= 0 {
		maxParallel = 5
	}

	return &Verifier{
		prober:      prober,
		timeout:     timeout,
		maxParallel: maxParallel,
		freshness:   freshness,
		seen:        make(map[string]VerifiedCandidate),
		log:         logger.New("verifier"),
	}
}

// Verify probes a single candidate. An Unknown first attempt is retried once
// before the verdict is final.
func (v *Verifier) Verify(ctx context.Context, link provider.CandidateLink) VerifiedCandidate {
	if vc, ok := v.cached(link); ok {
		return vc
	}

	vc := v.probeOnce(ctx, link)
	if vc.Verdict == Unknown {
		vc = v.probeOnce(ctx, link)
	}
	v.remember(vc)

	return vc
}

func (v *Verifier) probeOnce(ctx context.Context, link provider.CandidateLink) VerifiedCandidate {
	vc, err := v.check(ctx, link)
	if err != nil {
		return VerifiedCandidate{Link: link, Verdict: Unknown, CheckedAt: time.Now()}
	}

	return vc
}

// check runs one probe. Credential failures come back as the error; every
// other failure settles into an Unknown verdict.
func (v *Verifier) check(ctx context.Context, link provider.CandidateLink) (VerifiedCandidate, error) {
	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vc := VerifiedCandidate{Link: link, CheckedAt: time.Now()}

	probe, err := v.prober.Probe(probeCtx, link)
	switch {
	case errors.IsAuth(err):
		return vc, err
	case err != nil:
		vc.Verdict = Unknown
		v.log.Debug().Int64("link", link.ID).Err(err).Msg("probe failed")
	case probe.Active && probe.URL != "":
		vc.Verdict = Live
		vc.URL = probe.URL
	default:
		vc.Verdict = Dead
	}

	return vc, nil
}

// cacheKey pairs the provider link id with the URL: the grab surface numbers
// its candidates locally, so the id alone is not unique across payloads.
func cacheKey(link provider.CandidateLink) string {
	return strconv.FormatInt(link.ID, 10) + "|" + link.URL
}

// cached returns a prior settled verdict still inside the freshness window.
func (v *Verifier) cached(link provider.CandidateLink) (VerifiedCandidate, bool) {
	if v.freshness <= 0 {
		return VerifiedCandidate{}, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	vc, ok := v.seen[cacheKey(link)]
	if !ok || !vc.Fresh(time.Now(), v.freshness) {
		return VerifiedCandidate{}, false
	}

	return vc, true
}

// remember caches settled verdicts only; Unknown must be re-probed.
func (v *Verifier) remember(vc VerifiedCandidate) {
	if v.freshness <= 0 || vc.Verdict == Unknown {
		return
	}

	v.mu.Lock()
	v.seen[cacheKey(vc.Link)] = vc
	v.mu.Unlock()
}

// VerifyAll probes candidates in parallel, bounded by maxParallel, and
// returns only the live ones. A credential failure aborts the batch so the
// caller can escalate; any other probe error just yields Unknown for that
// link.
func (v *Verifier) VerifyAll(ctx context.Context, links []provider.CandidateLink) ([]VerifiedCandidate, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxParallel)

	var (
		mu   sync.Mutex
		live []VerifiedCandidate
	)

	keepLive := func(vc VerifiedCandidate) {
		if vc.Verdict != Live {
			return
		}
		mu.Lock()
		live = append(live, vc)
		mu.Unlock()
	}

	for _, link := range links {
		link := link
		g.Go(func() error {
			if vc, ok := v.cached(link); ok {
				keepLive(vc)
				return nil
			}

			vc, err := v.check(gctx, link)
			if err != nil {
				return err
			}

			if vc.Verdict == Unknown {
				// Retry unknowns once before excluding them.
				vc, err = v.check(gctx, link)
				if err != nil {
					return err
				}
			}

			v.remember(vc)
			keepLive(vc)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	v.log.Debug().Int("checked", len(links)).Int("live", len(live)).Msg("verification complete")

	return live, nil
}
