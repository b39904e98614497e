// Package reconciler drives job state convergence. A fixed-interval loop
// polls the engine for every non-terminal job, folds the per-link states
// into a single job state and writes it back through the registry. Terminal
// jobs drop out of the loop automatically.
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/registry"
	"github.com/bridgarr/bridgarr/internal/status"
)

// maxConcurrentPolls bounds how many jobs are reconciled in parallel per
// tick. Polls for distinct jobs are independent.
const maxConcurrentPolls = 4

type Reconciler struct {
	registry *registry.Registry
	bridge   *bridge.Bridge
	interval time.Duration
	log      zerolog.Logger
}

func New(reg *registry.Registry, br *bridge.Bridge, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Reconciler{
		registry: reg,
		bridge:   br,
		interval: interval,
		log:      logger.New("reconciler"),
	}
}

// Run polls until ctx is cancelled. Jobs submitted between ticks are picked
// up on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick reconciles every non-terminal job once.
func (r *Reconciler) Tick(ctx context.Context) {
	jobs := r.registry.NonTerminal()
	if len(jobs) == 0 {
		r.registry.CleanupStale()
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			r.reconcile(gctx, job)
			return nil
		})
	}

	g.Wait()

	r.registry.CleanupStale()
}

func (r *Reconciler) reconcile(ctx context.Context, job *registry.Job) {
	if len(job.Handles) == 0 {
		return
	}

	statuses, err := r.bridge.Poll(ctx, job.Handles)
	if err != nil {
		if errors.IsAuth(err) {
			r.log.Error().Str("id", job.ID).Err(err).Msg("engine authentication failed, holding job state")
		} else {
			r.log.Warn().Str("id", job.ID).Err(err).Msg("poll failed, holding job state")
		}
		return
	}

	update, ok := Aggregate(statuses)
	if !ok {
		// Nothing authoritative came back; keep the last known state.
		return
	}

	r.registry.ApplyUpdate(job.ID, update)
}

// Aggregate folds per-link states into one job state:
//
//	any link active            -> downloading
//	else any link extracting   -> extracting
//	else every link succeeded  -> completed
//	else any failure with no
//	  pending work remaining   -> failed
//	otherwise                  -> queued
//
// A partial failure next to successes is authoritative: the job fails even
// though some links finished. Unknown link states carry no information; when
// they would decide the verdict the caller holds the previous state, so an
// unreachable engine never flips a job back and forth.
func Aggregate(statuses []bridge.LinkStatus) (registry.StateUpdate, bool) {
	if len(statuses) == 0 {
		return registry.StateUpdate{}, false
	}

	var (
		active, extracting, pending, success, failure, unknown int
		update                                                 registry.StateUpdate
	)

	for _, ls := range statuses {
		switch ls.State {
		case bridge.Active:
			active++
		case bridge.Extracting:
			extracting++
		case bridge.Pending:
			pending++
		case bridge.Success:
			success++
		case bridge.Failure:
			failure++
		default:
			unknown++
		}

		update.SizeTotal += ls.BytesTotal
		update.SizeLoaded += ls.BytesLoaded
		update.Speed += ls.Speed
		if ls.ETA > update.ETA {
			update.ETA = ls.ETA
		}
		if update.OutputPath == "" && ls.SavePath != "" {
			update.OutputPath = ls.SavePath
		}
	}

	switch {
	case active > 0:
		update.State = status.Downloading
	case extracting > 0:
		update.State = status.Extracting
	case unknown > 0:
		// Without visibility into every remaining link, neither completion
		// nor failure can be proven. Hold the last known state.
		return registry.StateUpdate{}, false
	case success == len(statuses):
		update.State = status.Completed
	case failure > 0 && pending == 0:
		update.State = status.Failed
		update.Reason = "one or more links failed in the download engine"
	default:
		update.State = status.Queued
	}

	return update, true
}
