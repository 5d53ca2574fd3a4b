package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherRunsSubmittedTasks(t *testing.T) {
	d := NewDispatcher(2, 16)
	d.Start(context.Background())
	defer d.Stop()

	var mu sync.Mutex
	ran := make(map[string]bool)
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, d.Submit(Task{Name: name, Run: func(ctx context.Context) ([]Task, error) {
			mu.Lock()
			ran[name] = true
			mu.Unlock()
			return nil, nil
		}}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 3
	})
}

func TestDispatcherChainsFollowupsAfterSuccess(t *testing.T) {
	d := NewDispatcher(1, 16)
	d.Start(context.Background())
	defer d.Stop()

	var mu sync.Mutex
	var order []string
	second := Task{Name: "second", Run: func(ctx context.Context) ([]Task, error) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return nil, nil
	}}
	first := Task{Name: "first", Run: func(ctx context.Context) ([]Task, error) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return []Task{second}, nil
	}}
	require.NoError(t, d.Submit(first))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcherSkipsFollowupsOnFailure(t *testing.T) {
	d := NewDispatcher(1, 16)
	d.Start(context.Background())

	var mu sync.Mutex
	chained := false
	failing := Task{Name: "failing", Run: func(ctx context.Context) ([]Task, error) {
		return []Task{{Name: "never", Run: func(ctx context.Context) ([]Task, error) {
			mu.Lock()
			chained = true
			mu.Unlock()
			return nil, nil
		}}}, errors.New("stage broke")
	}}
	require.NoError(t, d.Submit(failing))
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.False(t, chained)
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	// Not started: nothing drains the queue.
	require.NoError(t, d.Submit(Task{Name: "fits", Run: func(ctx context.Context) ([]Task, error) {
		return nil, nil
	}}))
	err := d.Submit(Task{Name: "overflow", Run: func(ctx context.Context) ([]Task, error) {
		return nil, nil
	}})
	require.ErrorIs(t, err, appErr.ErrTooMany)

	d.Start(context.Background())
	d.Stop()
}

func TestDispatcherStopDrainsAndRejects(t *testing.T) {
	d := NewDispatcher(2, 16)
	d.Start(context.Background())

	var mu sync.Mutex
	done := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(Task{Name: "queued", Run: func(ctx context.Context) ([]Task, error) {
			mu.Lock()
			done++
			mu.Unlock()
			return nil, nil
		}}))
	}
	d.Stop()

	mu.Lock()
	require.Equal(t, 10, done)
	mu.Unlock()

	err := d.Submit(Task{Name: "late", Run: func(ctx context.Context) ([]Task, error) {
		return nil, nil
	}})
	require.Error(t, err)

	// Stop twice is safe.
	d.Stop()
}

func TestDispatcherRunsFollowupInlineWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	d.Start(context.Background())

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	blockerReady := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, d.Submit(Task{Name: "blocker", Run: func(ctx context.Context) ([]Task, error) {
		close(blockerReady)
		<-release
		filler := Task{Name: "filler", Run: func(ctx context.Context) ([]Task, error) {
			record("filler")
			return nil, nil
		}}
		chained := Task{Name: "chained", Run: func(ctx context.Context) ([]Task, error) {
			record("chained")
			return nil, nil
		}}
		record("blocker")
		// Two follow-ups against a one-slot queue: the second cannot be
		// enqueued and must run on this worker.
		return []Task{filler, chained}, nil
	}}))
	<-blockerReady
	close(release)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"blocker", "filler", "chained"}, order)
}
