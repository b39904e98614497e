// Package bridge isolates the reconciliation engine from the external
// download engine's API. Engine-native states are normalized into a closed
// six-value alphabet at this boundary so nothing downstream depends on
// engine-specific detail.
package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
)

// LinkState is the normalized per-link state alphabet.
type LinkState string

const (
	Pending    LinkState = "pending"
	Active     LinkState = "active"
	Extracting LinkState = "extracting"
	Success    LinkState = "success"
	Failure    LinkState = "failure"
	Unknown    LinkState = "unknown"
)

// Handle identifies a tracked package inside the external engine.
type Handle string

// LinkStatus is the normalized status of one engine handle.
type LinkStatus struct {
	Handle      Handle
	State       LinkState
	Name        string
	BytesTotal  int64
	BytesLoaded int64
	Speed       int64
	ETA         int64 // seconds remaining, 0 when unknown
	SavePath    string
}

// Submission registers a link set with the engine.
type Submission struct {
	Links       []string
	PackageName string
	DestFolder  string
}

// Client is the raw engine API: implemented by the remote client and by
// in-memory fakes in tests. Implementations normalize native states before
// returning.
type Client interface {
	Submit(ctx context.Context, sub Submission) ([]Handle, error)
	Poll(ctx context.Context, handles []Handle) ([]LinkStatus, error)
	Cancel(ctx context.Context, handle Handle) error
}

// Bridge wraps a Client with bounded exponential backoff for transient
// failures and a process-level health signal. Authentication failures are
// never retried.
type Bridge struct {
	client     Client
	maxRetries int
	baseDelay  time.Duration
	health     *Health
	log        zerolog.Logger
}

func New(client Client, maxRetries int, baseDelay time.Duration) *Bridge {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	return &Bridge{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		health:     NewHealth(),
		log:        logger.New("bridge"),
	}
}

// Health exposes the degraded-health signal.
func (b *Bridge) Health() *Health {
	return b.health
}

// Submit registers links with the engine, retrying transient failures.
func (b *Bridge) Submit(ctx context.Context, sub Submission) ([]Handle, error) {
	var handles []Handle

	err := b.withRetries(ctx, "submit", func() error {
		var err error
		handles, err = b.client.Submit(ctx, sub)
		return err
	})
	if err != nil {
		return nil, err
	}

	b.markHealthy()

	return handles, nil
}

// Poll fetches the current status of each handle. Transient unavailability
// after retries does not raise: every handle reports Unknown so the
// reconciler holds the last known state instead of flapping.
func (b *Bridge) Poll(ctx context.Context, handles []Handle) ([]LinkStatus, error) {
	var statuses []LinkStatus

	err := b.withRetries(ctx, "poll", func() error {
		var err error
		statuses, err = b.client.Poll(ctx, handles)
		return err
	})

	switch {
	case err == nil:
		b.markHealthy()
		return statuses, nil

	case errors.IsAuth(err):
		return nil, err

	default:
		b.log.Warn().Err(err).Msg("engine unreachable, reporting unknown states")
		stale := make([]LinkStatus, len(handles))
		for i, h := range handles {
			stale[i] = LinkStatus{Handle: h, State: Unknown}
		}
		return stale, nil
	}
}

// Cancel is best-effort removal: failures are logged, never fatal, and the
// job is still marked deleted locally by the caller.
func (b *Bridge) Cancel(ctx context.Context, handle Handle) {
	err := b.withRetries(ctx, "cancel", func() error {
		return b.client.Cancel(ctx, handle)
	})
	if err != nil {
		b.log.Warn().Str("handle", string(handle)).Err(err).Msg("failed to cancel engine package")
	}
}

// markHealthy records a successful engine call. The call authenticated, so
// a sticky credential failure is cleared along with reachability.
func (b *Bridge) markHealthy() {
	b.health.MarkEngineUp()
	b.health.MarkAuthOK()
}

// withRetries runs op with bounded exponential backoff. Auth failures
// escalate immediately to the degraded-health signal.
func (b *Bridge) withRetries(ctx context.Context, opName string, op func() error) error {
	var err error

	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if errors.IsAuth(err) {
			b.health.MarkAuthFailed(err)
			return err
		}

		if !errors.IsRetryable(err) || attempt >= b.maxRetries {
			break
		}

		backoff := b.baseDelay << attempt
		ev := b.log.Debug().Str("op", opName).Int("attempt", attempt+1).Dur("backoff", backoff).Err(err)
		if code, ok := errors.GetStatusCode(err); ok && code != 0 {
			ev = ev.Int("status", code)
		}
		ev.Msg("retrying engine call")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.health.MarkEngineDown(err)

	return errors.NewEngineError(errors.ErrEngineUnavailable, opName, 0)
}
