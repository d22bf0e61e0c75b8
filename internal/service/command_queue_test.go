package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/mantra/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
	"github.com/tejashwikalptaru/mantra/internal/testutil"
)

type recordedError struct {
	name string
	err  error
}

type errorRecorder struct {
	mu     sync.Mutex
	errors []recordedError
}

func (r *errorRecorder) handle(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, recordedError{name: name, err: err})
}

func (r *errorRecorder) all() []recordedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedError(nil), r.errors...)
}

func TestCommandQueue_RunsInOrder(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	q := NewCommandQueue(logger.NewTestLogger(), nil, nil, 0)
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var last <-chan struct{}
	for i := 0; i < 50; i++ {
		done, err := q.Enqueue("step", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		last = done
	}
	<-last

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestCommandQueue_OneAtATime(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	q := NewCommandQueue(logger.NewTestLogger(), nil, nil, 0)

	var mu sync.Mutex
	running, maxRunning := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := q.Enqueue("work", func(ctx context.Context) error {
				mu.Lock()
				running++
				maxRunning = max(maxRunning, running)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			if assert.NoError(t, err) {
				<-done
			}
		}()
	}
	wg.Wait()
	q.Close()

	assert.Equal(t, 1, maxRunning)
}

func TestCommandQueue_ErrorsDoNotStopTheQueue(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	recorder := &errorRecorder{}
	bus := eventbus.NewSyncEventBus()
	defer bus.Close()

	var completed []domain.CommandCompletedEvent
	bus.Subscribe(domain.EventCommandCompleted, func(event domain.Event) {
		completed = append(completed, event.(domain.CommandCompletedEvent))
	})

	q := NewCommandQueue(logger.NewTestLogger(), bus, recorder.handle, 0)

	boom := errors.New("boom")
	_, err := q.Enqueue("fails", func(ctx context.Context) error { return boom })
	require.NoError(t, err)
	_, err = q.Enqueue("panics", func(ctx context.Context) error { panic("kaboom") })
	require.NoError(t, err)

	ran := false
	done, err := q.Enqueue("works", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	<-done
	q.Close()

	assert.True(t, ran)

	errs := recorder.all()
	require.Len(t, errs, 2)
	assert.Equal(t, "fails", errs[0].name)
	assert.ErrorIs(t, errs[0].err, boom)
	assert.Equal(t, "panics", errs[1].name)
	assert.Contains(t, errs[1].err.Error(), "kaboom")

	require.Len(t, completed, 3)
	assert.Equal(t, "works", completed[2].Command)
	assert.NoError(t, completed[2].Error)
	assert.NotEmpty(t, completed[0].ID)
	assert.NotEqual(t, completed[0].ID, completed[1].ID)
}

func TestCommandQueue_EnqueueFromCommand(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	q := NewCommandQueue(logger.NewTestLogger(), nil, nil, 0)
	defer q.Close()

	inner := make(chan (<-chan struct{}), 1)
	outer, err := q.Enqueue("outer", func(ctx context.Context) error {
		done, err := q.Enqueue("inner", func(ctx context.Context) error { return nil })
		inner <- done
		return err
	})
	require.NoError(t, err)

	<-outer
	innerDone := <-inner
	select {
	case <-innerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("command enqueued from a running command never ran")
	}
}

func TestCommandQueue_Timeout(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	recorder := &errorRecorder{}
	q := NewCommandQueue(logger.NewTestLogger(), nil, recorder.handle, 10*time.Millisecond)
	defer q.Close()

	done, err := q.Enqueue("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-done

	errs := recorder.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].err, context.DeadlineExceeded)
}

func TestCommandQueue_CloseDrains(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	q := NewCommandQueue(logger.NewTestLogger(), nil, nil, 0)

	release := make(chan struct{})
	_, err := q.Enqueue("block", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue("count", func(ctx context.Context) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, q.Pending(), 5)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	close(release)
	<-closed

	mu.Lock()
	assert.Equal(t, 5, count)
	mu.Unlock()
	assert.Equal(t, 0, q.Pending())

	_, err = q.Enqueue("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrEngineClosed)

	// Closing twice is fine
	q.Close()
}
