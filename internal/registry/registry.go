// Package registry owns the authoritative job table. Each job maps a
// synthetic release to the engine handles downloading it. All state writes
// go through per-job locks so concurrent protocol calls and reconciler
// updates for the same job serialize while independent jobs proceed in
// parallel.
package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/release"
	"github.com/bridgarr/bridgarr/internal/status"
)

// failedRetention is how long failed jobs stay visible before cleanup.
const failedRetention = 24 * time.Hour

// StateUpdate is a reconciler-derived snapshot applied to a job. It never
// carries the Deleted state; removal is an explicit client operation.
type StateUpdate struct {
	State      status.Status
	SizeTotal  int64
	SizeLoaded int64
	Speed      int64
	ETA        int64
	OutputPath string
	Reason     string
}

// Registry is the job table backed by a bbolt store. The in-memory map is
// authoritative at runtime; the store exists so jobs survive restarts.
type Registry struct {
	store  *Store
	bridge *bridge.Bridge

	mu    sync.RWMutex
	jobs  map[string]*Job
	byNzo map[string]string

	locks sync.Map // job id -> *sync.Mutex

	outputDir string
	log       zerolog.Logger
	now       func() time.Time
}

func New(store *Store, br *bridge.Bridge, outputDir string) (*Registry, error) {
	r := &Registry{
		store:     store,
		bridge:    br,
		jobs:      make(map[string]*Job),
		byNzo:     make(map[string]string),
		outputDir: outputDir,
		log:       logger.New("registry"),
		now:       time.Now,
	}

	persisted, err := store.FindAll()
	if err != nil {
		return nil, err
	}

	for _, job := range persisted {
		r.jobs[job.ID] = job
		r.byNzo[job.NzoID] = job.ID
	}

	if len(persisted) > 0 {
		r.log.Info().Int("jobs", len(persisted)).Msg("restored jobs from store")
	}

	return r, nil
}

// lockFor returns the mutex serializing writes to one job.
func (r *Registry) lockFor(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Submit creates a job for a retrieval reference and hands its links to the
// engine. Submissions are idempotent on the synthetic id: an existing live
// or completed job is returned unchanged and nothing reaches the engine
// again. A deleted or failed job may be resubmitted as a fresh attempt.
func (r *Registry) Submit(ctx context.Context, p release.Payload, size int64, label string) (*Job, error) {
	if p.ID == "" {
		p.ID = release.DeriveID(p.Links)
	}
	if len(p.Links) == 0 {
		return nil, errors.ErrNoValidLinks
	}

	mu := r.lockFor(p.ID)
	mu.Lock()
	defer mu.Unlock()

	r.mu.RLock()
	existing := r.jobs[p.ID]
	r.mu.RUnlock()

	if existing != nil && existing.State != status.Deleted && existing.State != status.Failed {
		r.log.Debug().Str("id", p.ID).Str("state", string(existing.State)).Msg("duplicate submission, returning existing job")
		return existing.clone(), nil
	}

	now := r.now()
	job := &Job{
		ID:          p.ID,
		NzoID:       "SAB_nzo_" + uuid.NewString(),
		Title:       p.Title,
		Label:       label,
		Links:       append([]string(nil), p.Links...),
		PackageName: packageName(label, p.Title),
		State:       status.Queued,
		SizeTotal:   size,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	handles, err := r.bridge.Submit(ctx, bridge.Submission{
		Links:       job.Links,
		PackageName: job.PackageName,
		DestFolder:  filepath.Join(r.outputDir, label, p.Title),
	})
	if err != nil {
		job.State = status.Failed
		job.ErrorReason = "failed to register links with download engine"
		job.CompletedAt = now
		r.put(job)

		return job.clone(), err
	}

	job.Handles = handles
	r.put(job)

	r.log.Info().Str("id", job.ID).Str("title", job.Title).Int("links", len(job.Links)).Msg("job submitted")

	return job.clone(), nil
}

// Get returns a snapshot of a job by synthetic id or acceptance id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if job, ok := r.jobs[id]; ok {
		return job.clone(), nil
	}
	if jid, ok := r.byNzo[id]; ok {
		return r.jobs[jid].clone(), nil
	}

	return nil, errors.ErrJobNotFound
}

// Queue returns snapshots of all jobs still in flight, most recent first.
func (r *Registry) Queue() []*Job {
	return r.list(func(j *Job) bool { return !j.State.Terminal() })
}

// History returns snapshots of finished jobs, most recent first. Deleted
// jobs are tracked for idempotent removal but not listed.
func (r *Registry) History() []*Job {
	return r.list(func(j *Job) bool {
		return j.State == status.Completed || j.State == status.Failed
	})
}

// NonTerminal returns the jobs the reconciler should poll.
func (r *Registry) NonTerminal() []*Job {
	return r.list(func(j *Job) bool { return !j.State.Terminal() })
}

func (r *Registry) list(keep func(*Job) bool) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Job
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, job.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// Delete marks a job deleted and asks the engine to drop its packages.
// Removal is idempotent and always wins over concurrent reconciler writes;
// engine cancellation is best-effort.
func (r *Registry) Delete(ctx context.Context, id string) error {
	job, err := r.Get(id)
	if err != nil {
		if errors.Is(err, errors.ErrJobNotFound) {
			return nil
		}
		return err
	}

	mu := r.lockFor(job.ID)
	mu.Lock()

	r.mu.RLock()
	current := r.jobs[job.ID]
	r.mu.RUnlock()

	if current == nil || current.State == status.Deleted {
		mu.Unlock()
		return nil
	}

	now := r.now()
	updated := current.clone()
	updated.State = status.Deleted
	updated.Speed = 0
	updated.ETA = 0
	updated.UpdatedAt = now
	updated.CompletedAt = now
	r.put(updated)

	handles := append([]bridge.Handle(nil), updated.Handles...)
	mu.Unlock()

	for _, h := range handles {
		r.bridge.Cancel(ctx, h)
	}

	r.log.Info().Str("id", job.ID).Str("title", job.Title).Msg("job deleted")

	return nil
}

// DeleteAll removes every tracked job.
func (r *Registry) DeleteAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// ApplyUpdate writes a reconciler-derived state onto a job. The job is
// re-read under its lock before writing: if it was deleted or reached a
// terminal state in the meantime the update is discarded, so stale poll
// results can never resurrect a removed job.
func (r *Registry) ApplyUpdate(id string, update StateUpdate) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r.mu.RLock()
	current := r.jobs[id]
	r.mu.RUnlock()

	if current == nil || current.State.Terminal() {
		return
	}

	if !changed(current, update) {
		return
	}

	now := r.now()
	updated := current.clone()
	updated.State = update.State
	updated.SizeLoaded = update.SizeLoaded
	updated.Speed = update.Speed
	updated.ETA = update.ETA
	if update.SizeTotal > 0 {
		updated.SizeTotal = update.SizeTotal
	}
	if update.OutputPath != "" {
		updated.OutputPath = update.OutputPath
	}
	if update.Reason != "" {
		updated.ErrorReason = update.Reason
	}
	updated.UpdatedAt = now

	if update.State.Terminal() {
		updated.Speed = 0
		updated.ETA = 0
		updated.CompletedAt = now
		if update.State == status.Completed {
			updated.SizeLoaded = updated.SizeTotal
		}
	}

	r.put(updated)

	if current.State != update.State {
		r.log.Info().Str("id", id).Str("from", string(current.State)).Str("to", string(update.State)).Msg("job state changed")
	}
}

// CleanupStale drops finished jobs that no longer serve anyone: completed
// jobs whose output directory is gone and failed jobs past the retention
// window.
func (r *Registry) CleanupStale() {
	now := r.now()

	for _, job := range r.list(func(j *Job) bool { return j.State.Terminal() }) {
		stale := false

		switch job.State {
		case status.Completed:
			if job.OutputPath != "" {
				if _, err := os.Stat(job.OutputPath); os.IsNotExist(err) {
					stale = true
				}
			}
		case status.Failed:
			stale = !job.CompletedAt.IsZero() && now.Sub(job.CompletedAt) > failedRetention
		}

		if !stale {
			continue
		}

		mu := r.lockFor(job.ID)
		mu.Lock()
		r.remove(job.ID)
		mu.Unlock()

		r.log.Debug().Str("id", job.ID).Str("title", job.Title).Msg("removed stale job")
	}
}

// put stores a job in memory and persists it. Persistence failures are
// logged; the in-memory table stays authoritative. Replacing a job with a
// fresh attempt retires its previous acceptance id.
func (r *Registry) put(job *Job) {
	r.mu.Lock()
	if old, ok := r.jobs[job.ID]; ok && old.NzoID != job.NzoID {
		delete(r.byNzo, old.NzoID)
	}
	r.jobs[job.ID] = job
	r.byNzo[job.NzoID] = job.ID
	r.mu.Unlock()

	if err := r.store.Save(job); err != nil {
		r.log.Error().Str("id", job.ID).Err(err).Msg("failed to persist job")
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	if job, ok := r.jobs[id]; ok {
		delete(r.byNzo, job.NzoID)
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if err := r.store.Delete(id); err != nil && !errors.Is(err, errors.ErrJobNotFound) {
		r.log.Error().Str("id", id).Err(err).Msg("failed to remove job from store")
	}
}

// Close flushes nothing (writes are synchronous) and closes the store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func changed(current *Job, update StateUpdate) bool {
	return current.State != update.State ||
		current.SizeLoaded != update.SizeLoaded ||
		current.Speed != update.Speed ||
		current.ETA != update.ETA ||
		(update.SizeTotal > 0 && current.SizeTotal != update.SizeTotal) ||
		(update.OutputPath != "" && current.OutputPath != update.OutputPath)
}

func packageName(label, title string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return title
	}

	return "[" + strings.ToUpper(label) + "] " + title
}
