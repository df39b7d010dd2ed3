package annotate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaGateBlocksWhilePaused(t *testing.T) {
	t.Parallel()

	g := NewQuotaGate()
	release := make(chan struct{})
	entered := make(chan struct{})
	sleeper := func(ctx context.Context, d time.Duration) error {
		close(entered)
		<-release
		return nil
	}

	pauseDone := make(chan error, 1)
	go func() { pauseDone <- g.Pause(context.Background(), time.Second, sleeper) }()
	<-entered
	assert.True(t, g.Paused())

	waitDone := make(chan error, 1)
	go func() { waitDone <- g.Wait(context.Background()) }()

	select {
	case <-waitDone:
		t.Fatal("Wait returned while the gate was paused")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-pauseDone)
	require.NoError(t, <-waitDone)
	assert.False(t, g.Paused())
}

func TestQuotaGateWaitHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewQuotaGate()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Pause(context.Background(), time.Second, func(ctx context.Context, d time.Duration) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.Canceled)
}

func TestNilQuotaGate(t *testing.T) {
	t.Parallel()

	var g *QuotaGate
	assert.NoError(t, g.Wait(context.Background()))
	assert.False(t, g.Paused())

	called := false
	err := g.Pause(context.Background(), time.Millisecond, func(ctx context.Context, d time.Duration) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestSleepContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
