package bridge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/errors"
)

// fakeClient scripts engine behavior per call.
type fakeClient struct {
	mu          sync.Mutex
	submitCalls int
	pollCalls   int
	cancelCalls int

	submit func(call int) ([]bridge.Handle, error)
	poll   func(call int, handles []bridge.Handle) ([]bridge.LinkStatus, error)
	cancel func(call int) error
}

func (f *fakeClient) Submit(_ context.Context, _ bridge.Submission) ([]bridge.Handle, error) {
	f.mu.Lock()
	f.submitCalls++
	call := f.submitCalls
	f.mu.Unlock()
	return f.submit(call)
}

func (f *fakeClient) Poll(_ context.Context, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
	f.mu.Lock()
	f.pollCalls++
	call := f.pollCalls
	f.mu.Unlock()
	return f.poll(call, handles)
}

func (f *fakeClient) Cancel(_ context.Context, _ bridge.Handle) error {
	f.mu.Lock()
	f.cancelCalls++
	call := f.cancelCalls
	f.mu.Unlock()
	if f.cancel == nil {
		return nil
	}
	return f.cancel(call)
}

func transientErr() error {
	return errors.NewEngineError(errors.New("connection refused"), "submit", 0)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	handle := bridge.Handle(uuid.NewString())
	client := &fakeClient{submit: func(call int) ([]bridge.Handle, error) {
		if call < 3 {
			return nil, transientErr()
		}
		return []bridge.Handle{handle}, nil
	}}

	b := bridge.New(client, 5, time.Millisecond)

	handles, err := b.Submit(context.Background(), bridge.Submission{Links: []string{"https://dl.example/x"}})
	require.NoError(t, err)
	assert.Equal(t, []bridge.Handle{handle}, handles)
	assert.Equal(t, 3, client.submitCalls)
	assert.False(t, b.Health().Degraded())
}

func TestSubmitExhaustsRetries(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submit: func(int) ([]bridge.Handle, error) {
		return nil, transientErr()
	}}

	b := bridge.New(client, 2, time.Millisecond)

	_, err := b.Submit(context.Background(), bridge.Submission{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEngineUnavailable))
	assert.Equal(t, 3, client.submitCalls, "initial attempt plus two retries")
	assert.True(t, b.Health().Degraded())
}

func TestAuthFailureIsNeverRetried(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submit: func(int) ([]bridge.Handle, error) {
		return nil, errors.NewAuthError(errors.ErrAuthentication, "connect")
	}}

	b := bridge.New(client, 5, time.Millisecond)

	_, err := b.Submit(context.Background(), bridge.Submission{})
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
	assert.Equal(t, 1, client.submitCalls)
	assert.True(t, b.Health().Degraded())
}

func TestPollReportsUnknownWhenEngineUnreachable(t *testing.T) {
	t.Parallel()

	client := &fakeClient{poll: func(int, []bridge.Handle) ([]bridge.LinkStatus, error) {
		return nil, transientErr()
	}}

	b := bridge.New(client, 1, time.Millisecond)
	handles := []bridge.Handle{"pkg-a", "pkg-b"}

	statuses, err := b.Poll(context.Background(), handles)
	require.NoError(t, err, "transient unavailability must not surface as a poll error")
	require.Len(t, statuses, 2)
	for i, st := range statuses {
		assert.Equal(t, handles[i], st.Handle)
		assert.Equal(t, bridge.Unknown, st.State)
	}
}

func TestPollRecoversHealth(t *testing.T) {
	t.Parallel()

	client := &fakeClient{poll: func(call int, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
		if call == 1 {
			return nil, transientErr()
		}
		return []bridge.LinkStatus{{Handle: handles[0], State: bridge.Active}}, nil
	}}

	b := bridge.New(client, 0, time.Millisecond)

	b.Poll(context.Background(), []bridge.Handle{"pkg"})
	statuses, err := b.Poll(context.Background(), []bridge.Handle{"pkg"})
	require.NoError(t, err)
	assert.Equal(t, bridge.Active, statuses[0].State)
	assert.False(t, b.Health().Degraded())
}

func TestSuccessfulCallClearsAuthFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{poll: func(call int, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
		if call == 1 {
			return nil, errors.NewAuthError(errors.ErrAuthentication, "connect")
		}
		return []bridge.LinkStatus{{Handle: handles[0], State: bridge.Active}}, nil
	}}

	b := bridge.New(client, 1, time.Millisecond)

	_, err := b.Poll(context.Background(), []bridge.Handle{"pkg"})
	require.Error(t, err)
	assert.True(t, b.Health().Degraded())

	// Credentials were fixed out of band; the next authenticated call
	// clears the sticky failure.
	_, err = b.Poll(context.Background(), []bridge.Handle{"pkg"})
	require.NoError(t, err)
	assert.False(t, b.Health().Degraded())
}

func TestCancelIsBestEffort(t *testing.T) {
	t.Parallel()

	client := &fakeClient{cancel: func(int) error {
		return transientErr()
	}}

	b := bridge.New(client, 1, time.Millisecond)

	// Must not panic or block; failures are logged only.
	b.Cancel(context.Background(), "pkg")
	assert.Equal(t, 2, client.cancelCalls)
}
