package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedTriggers struct {
	mu       sync.Mutex
	triggers []Trigger
}

func (f *firedTriggers) fire(_ context.Context, t Trigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, t)
}

func (f *firedTriggers) snapshot() []Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Trigger(nil), f.triggers...)
}

func startDebouncer(t *testing.T, d *Debouncer, fire func(context.Context, Trigger)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, fire) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	<-d.Ready()
}

func TestNewDebouncer_Validation(t *testing.T) {
	_, err := NewDebouncer(0, time.Second)
	require.Error(t, err)
	_, err = NewDebouncer(time.Second, 0)
	require.Error(t, err)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d, err := NewDebouncer(50*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	var fired firedTriggers
	startDebouncer(t, d, fired.fire)

	for _, reason := range []string{"a.md", "b.md", "c.md"} {
		d.Request(reason)
	}

	require.Eventually(t, func() bool { return len(fired.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := fired.snapshot()[0]
	assert.Equal(t, "quiet", got.Cause)
	assert.Equal(t, 3, got.RequestCount)
	assert.Equal(t, "c.md", got.Reason)
	assert.False(t, got.FirstRequest.IsZero())

	assert.Never(t, func() bool { return len(fired.snapshot()) > 1 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestDebouncer_MaxDelayBoundsPostponement(t *testing.T) {
	d, err := NewDebouncer(100*time.Millisecond, 250*time.Millisecond)
	require.NoError(t, err)
	var fired firedTriggers
	startDebouncer(t, d, fired.fire)

	stop := time.After(600 * time.Millisecond)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			d.Request("edit")
		}
	}

	triggers := fired.snapshot()
	require.NotEmpty(t, triggers)
	assert.Equal(t, "max_delay", triggers[0].Cause)
}

func TestDebouncer_RequestDuringBuildQueuesOneFollowUp(t *testing.T) {
	d, err := NewDebouncer(20*time.Millisecond, time.Second)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var fired firedTriggers
	startDebouncer(t, d, func(ctx context.Context, tr Trigger) {
		fired.fire(ctx, tr)
		started <- struct{}{}
		if len(fired.snapshot()) == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
	})

	d.Request("first")
	<-started
	for range 5 {
		d.Request("during")
	}
	close(release)

	require.Eventually(t, func() bool { return len(fired.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	follow := fired.snapshot()[1]
	assert.Equal(t, 5, follow.RequestCount)
	assert.Never(t, func() bool { return len(fired.snapshot()) > 2 }, 150*time.Millisecond, 20*time.Millisecond)
}

func TestDebouncer_RunStopsOnCancel(t *testing.T) {
	d, err := NewDebouncer(time.Hour, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, func(context.Context, Trigger) {}) }()
	<-d.Ready()
	d.Request("pending")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
