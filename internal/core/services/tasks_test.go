package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

func TestTaskRunner_RunsAndCounts(t *testing.T) {
	r := NewTaskRunner(TaskRunnerConfig{Logger: discardLogger()})

	done := make(chan struct{})
	id, err := r.TryGo("full_sync", "s1", func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	<-done
	r.Wait()

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Started)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, 0, stats.Running)
}

func TestTaskRunner_FailuresArePublished(t *testing.T) {
	var hooked domain.TaskFailure
	r := NewTaskRunner(TaskRunnerConfig{
		Logger:    discardLogger(),
		OnFailure: func(f domain.TaskFailure) { hooked = f },
	})

	boom := errors.New("boom")
	id, err := r.TryGo("incremental_sync", "s1", func(ctx context.Context) error { return boom })
	require.NoError(t, err)

	select {
	case failure := <-r.Failures():
		assert.Equal(t, id, failure.TaskID)
		assert.Equal(t, "incremental_sync", failure.Name)
		assert.Equal(t, "s1", failure.StoreID)
		assert.ErrorIs(t, failure.Err, boom)
	case <-time.After(time.Second):
		t.Fatal("expected a failure report")
	}

	r.Wait()
	assert.Equal(t, id, hooked.TaskID)
	assert.Equal(t, int64(1), r.Stats().Failed)
}

func TestTaskRunner_PanicIsFailure(t *testing.T) {
	r := NewTaskRunner(TaskRunnerConfig{Logger: discardLogger()})

	_, err := r.TryGo("full_sync", "s1", func(ctx context.Context) error { panic("bad") })
	require.NoError(t, err)

	failure := <-r.Failures()
	assert.ErrorContains(t, failure.Err, "panicked")
}

func TestTaskRunner_TryGoRespectsLimit(t *testing.T) {
	r := NewTaskRunner(TaskRunnerConfig{Limit: 1, Logger: discardLogger()})

	release := make(chan struct{})
	_, err := r.TryGo("a", "s1", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	_, err = r.TryGo("b", "s2", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTaskLimitReached)

	close(release)
	r.Wait()

	_, err = r.TryGo("c", "s3", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	r.Wait()
}

func TestTaskRunner_GoWaitsForSlot(t *testing.T) {
	r := NewTaskRunner(TaskRunnerConfig{Limit: 1, Logger: discardLogger()})

	release := make(chan struct{})
	_, err := r.TryGo("a", "s1", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Go(ctx, "b", "s2", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	_, err = r.Go(context.Background(), "c", "s3", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	r.Wait()
}

func TestTaskRunner_Shutdown(t *testing.T) {
	r := NewTaskRunner(TaskRunnerConfig{Logger: discardLogger()})

	cancelled := make(chan struct{})
	_, err := r.TryGo("long", "s1", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	<-cancelled

	_, err = r.TryGo("late", "s1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrShuttingDown)

	_, err = r.Go(context.Background(), "late", "s1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}
