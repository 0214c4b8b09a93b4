package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestPool_GoRunsTasks(t *testing.T) {
	p := New(2, 8)

	var n atomic.Int32
	for range 10 {
		p.Go("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		})
	}

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int32(10), n.Load())
	ok, failed := p.Stats()
	assert.Equal(t, int64(10), ok)
	assert.Zero(t, failed)
}

func TestPool_ErrorsAreLoggedNotPropagated(t *testing.T) {
	logs := observeLogs(t)
	p := New(1, 1)

	p.Go("boom", func(ctx context.Context) error { return errors.New("store down") })
	p.Go("panic", func(ctx context.Context) error { panic("bad state") })

	require.NoError(t, p.Close(context.Background()))

	_, failed := p.Stats()
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, 1, logs.FilterMessage("worker: task failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("worker: task panicked").Len())
}

func TestPool_GoDoesNotBlockWhenQueueFull(t *testing.T) {
	p := New(1, 0)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		p.Go("wait", func(ctx context.Context) error {
			defer wg.Done()
			<-release
			return nil
		})
	}

	// All three were accepted without the caller blocking.
	close(release)
	wg.Wait()
	require.NoError(t, p.Close(context.Background()))
}

func TestPool_GoAfterCloseIsDropped(t *testing.T) {
	logs := observeLogs(t)
	p := New(1, 1)
	require.NoError(t, p.Close(context.Background()))

	ran := false
	p.Go("late", func(ctx context.Context) error { ran = true; return nil })

	assert.False(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("worker: pool closed, task dropped").Len())
	assert.NoError(t, p.Close(context.Background()), "second close is a no-op")
}

func TestPool_DoReturnsResult(t *testing.T) {
	p := New(2, 0)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	err := p.Do(context.Background(), func(ctx context.Context) error { return errors.New("not authorized") })
	assert.EqualError(t, err, "not authorized")

	err = p.Do(context.Background(), func(ctx context.Context) error { panic("oops") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked")
}

func TestPool_DoBoundsConcurrency(t *testing.T) {
	p := New(2, 0)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(ctx context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_DoHonorsContext(t *testing.T) {
	p := New(1, 0)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire slot")
	close(hold)
}

func TestPool_CloseTimesOut(t *testing.T) {
	p := New(1, 1)

	block := make(chan struct{})
	p.Go("stuck", func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
