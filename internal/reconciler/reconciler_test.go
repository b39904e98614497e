package reconciler_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/reconciler"
	"github.com/bridgarr/bridgarr/internal/registry"
	"github.com/bridgarr/bridgarr/internal/release"
	"github.com/bridgarr/bridgarr/internal/status"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	ls := func(states ...bridge.LinkState) []bridge.LinkStatus {
		out := make([]bridge.LinkStatus, len(states))
		for i, s := range states {
			out[i] = bridge.LinkStatus{Handle: bridge.Handle(rune('a' + i)), State: s}
		}
		return out
	}

	tests := []struct {
		name   string
		states []bridge.LinkStatus
		want   status.Status
		hold   bool
	}{
		{"single active", ls(bridge.Active), status.Downloading, false},
		{"active beats everything", ls(bridge.Success, bridge.Failure, bridge.Active), status.Downloading, false},
		{"extracting after transfer", ls(bridge.Success, bridge.Extracting), status.Extracting, false},
		{"all success", ls(bridge.Success, bridge.Success), status.Completed, false},
		{"partial failure is authoritative", ls(bridge.Success, bridge.Failure), status.Failed, false},
		{"failure with pending work keeps going", ls(bridge.Failure, bridge.Pending), status.Queued, false},
		{"all pending", ls(bridge.Pending, bridge.Pending), status.Queued, false},
		{"all unknown holds state", ls(bridge.Unknown, bridge.Unknown), "", true},
		{"partial unknown holds state", ls(bridge.Success, bridge.Unknown), "", true},
		{"no statuses holds state", nil, "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			update, ok := reconciler.Aggregate(tt.states)
			if tt.hold {
				assert.False(t, ok)
				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.want, update.State)
		})
	}
}

func TestAggregateSumsProgress(t *testing.T) {
	t.Parallel()

	update, ok := reconciler.Aggregate([]bridge.LinkStatus{
		{Handle: "a", State: bridge.Active, BytesTotal: 100, BytesLoaded: 40, Speed: 10, ETA: 6},
		{Handle: "b", State: bridge.Active, BytesTotal: 200, BytesLoaded: 50, Speed: 20, ETA: 8, SavePath: "/out/pkg"},
	})

	require.True(t, ok)
	assert.Equal(t, int64(300), update.SizeTotal)
	assert.Equal(t, int64(90), update.SizeLoaded)
	assert.Equal(t, int64(30), update.Speed)
	assert.Equal(t, int64(8), update.ETA, "slowest link bounds the eta")
	assert.Equal(t, "/out/pkg", update.OutputPath)
}

// scriptedClient walks each handle through a fixed state sequence, one step
// per poll.
type scriptedClient struct {
	mu    sync.Mutex
	steps map[bridge.Handle][]bridge.LinkState
	pos   map[bridge.Handle]int
}

func (c *scriptedClient) Submit(_ context.Context, sub bridge.Submission) ([]bridge.Handle, error) {
	return []bridge.Handle{bridge.Handle(sub.PackageName)}, nil
}

func (c *scriptedClient) Poll(_ context.Context, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pos == nil {
		c.pos = make(map[bridge.Handle]int)
	}

	out := make([]bridge.LinkStatus, len(handles))
	for i, h := range handles {
		seq := c.steps[h]
		idx := c.pos[h]
		if idx >= len(seq) {
			idx = len(seq) - 1
		} else {
			c.pos[h]++
		}
		out[i] = bridge.LinkStatus{Handle: h, State: seq[idx], BytesTotal: 100, BytesLoaded: 50}
	}

	return out, nil
}

func (c *scriptedClient) Cancel(_ context.Context, _ bridge.Handle) error { return nil }

func TestTickConvergesToTerminalState(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{steps: map[bridge.Handle][]bridge.LinkState{}}

	store, err := registry.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)

	br := bridge.New(client, 1, time.Millisecond)
	reg, err := registry.New(store, br, t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	p := release.Payload{
		ID:    release.DeriveID([]string{"https://dl.example/a"}),
		Title: "Some Movie (2021) WEBDL-1080p",
		Links: []string{"https://dl.example/a"},
	}

	job, err := reg.Submit(context.Background(), p, 0, "movies")
	require.NoError(t, err)
	require.Len(t, job.Handles, 1)

	client.mu.Lock()
	client.steps[job.Handles[0]] = []bridge.LinkState{
		bridge.Pending, bridge.Active, bridge.Extracting, bridge.Success,
	}
	client.mu.Unlock()

	rec := reconciler.New(reg, br, time.Minute)

	wantStates := []status.Status{status.Queued, status.Downloading, status.Extracting, status.Completed}
	for _, want := range wantStates {
		rec.Tick(context.Background())

		got, err := reg.Get(job.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.State)
	}

	// Terminal jobs drop out of the poll set; further ticks change nothing.
	rec.Tick(context.Background())
	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, got.State)
	assert.Equal(t, int64(100), got.SizeLoaded, "completion reports the full size")
}

func TestTickHoldsStateWhileEngineUnreachable(t *testing.T) {
	t.Parallel()

	client := &flakyClient{}

	store, err := registry.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)

	br := bridge.New(client, 1, time.Millisecond)
	reg, err := registry.New(store, br, t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	p := release.Payload{
		ID:    release.DeriveID([]string{"https://dl.example/a"}),
		Title: "Some Movie (2021) WEBDL-1080p",
		Links: []string{"https://dl.example/a"},
	}

	job, err := reg.Submit(context.Background(), p, 0, "movies")
	require.NoError(t, err)

	rec := reconciler.New(reg, br, time.Minute)

	// First tick: engine reachable, job starts downloading.
	rec.Tick(context.Background())
	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, status.Downloading, got.State)

	// Engine goes dark: state must hold, not flap to failed.
	client.setDown(true)
	rec.Tick(context.Background())
	rec.Tick(context.Background())

	got, err = reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Downloading, got.State)
}

// flakyClient serves Active states until setDown flips it to erroring.
type flakyClient struct {
	mu   sync.Mutex
	down bool
}

func (c *flakyClient) setDown(v bool) {
	c.mu.Lock()
	c.down = v
	c.mu.Unlock()
}

func (c *flakyClient) Submit(_ context.Context, sub bridge.Submission) ([]bridge.Handle, error) {
	return []bridge.Handle{bridge.Handle(sub.PackageName)}, nil
}

func (c *flakyClient) Poll(_ context.Context, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
	c.mu.Lock()
	down := c.down
	c.mu.Unlock()

	if down {
		return nil, bridgeDownErr()
	}

	out := make([]bridge.LinkStatus, len(handles))
	for i, h := range handles {
		out[i] = bridge.LinkStatus{Handle: h, State: bridge.Active}
	}
	return out, nil
}

func (c *flakyClient) Cancel(_ context.Context, _ bridge.Handle) error { return nil }

func bridgeDownErr() error {
	return errors.NewEngineError(errors.New("connection refused"), "poll", 0)
}
