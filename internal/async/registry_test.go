package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func job(user int64, name string) Job {
	return Job{ID: uuid.New(), UserID: user, FileName: name}
}

func waitIdle(t *testing.T, r *Registry) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry_SameUserIsSerializedFIFO(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, j Job) {
		rec.add("start " + j.FileName)
		if j.FileName == "a" {
			<-release
		}
		rec.add("end " + j.FileName)
	})
	r := NewRegistry(WithHandler(h))

	ahead, err := r.Enqueue(context.Background(), job(1, "a"))
	require.NoError(t, err)
	assert.Equal(t, 0, ahead)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)

	ahead, err = r.Enqueue(context.Background(), job(1, "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, ahead)
	_, _ = r.Enqueue(context.Background(), job(1, "c"))
	assert.Equal(t, 2, r.Pending(1))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"start a"}, rec.snapshot(), "b must not start before a is terminal")

	close(release)
	waitIdle(t, r)
	assert.Equal(t, []string{"start a", "end a", "start b", "end b", "start c", "end c"}, rec.snapshot())
}

func TestRegistry_UsersRunInParallel(t *testing.T) {
	var running, peak atomic.Int32
	gate := make(chan struct{})
	h := HandlerFunc(func(context.Context, Job) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
	})
	r := NewRegistry(WithHandler(h))
	for u := int64(1); u <= 3; u++ {
		_, err := r.Enqueue(context.Background(), job(u, "x"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, r.Active())
	close(gate)
	waitIdle(t, r)
	assert.Equal(t, int32(3), peak.Load())
}

func TestRegistry_HandleRemovedOnDrain(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	observed := func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), seen...)
	}
	r := NewRegistry(
		WithHandler(HandlerFunc(func(context.Context, Job) {})),
		WithObserver(func(active int) { mu.Lock(); seen = append(seen, active); mu.Unlock() }),
	)

	_, err := r.Enqueue(context.Background(), job(7, "a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(observed()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, 0, r.Pending(7))

	_, err = r.Enqueue(context.Background(), job(7, "b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(observed()) == 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 0, 1, 0}, observed())
}

func TestRegistry_PanicDoesNotKillWorker(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(WithHandler(HandlerFunc(func(_ context.Context, j Job) {
		if j.FileName == "bad" {
			panic("kaboom")
		}
		rec.add(j.FileName)
	})))

	_, _ = r.Enqueue(context.Background(), job(1, "bad"))
	_, _ = r.Enqueue(context.Background(), job(1, "good"))
	waitIdle(t, r)
	assert.Equal(t, []string{"good"}, rec.snapshot())
}

func TestRegistry_JobTimeout(t *testing.T) {
	errs := make(chan error, 1)
	r := NewRegistry(WithJobTimeout(10*time.Millisecond), WithHandler(HandlerFunc(func(ctx context.Context, _ Job) {
		<-ctx.Done()
		errs <- ctx.Err()
	})))

	_, _ = r.Enqueue(context.Background(), job(1, "slow"))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job context never expired")
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	var done atomic.Int32
	r := NewRegistry(WithHandler(HandlerFunc(func(context.Context, Job) {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
	})))
	for i := 0; i < 3; i++ {
		_, _ = r.Enqueue(context.Background(), job(1, "x"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Shutdown(ctx)
	assert.Equal(t, int32(3), done.Load())

	_, err := r.Enqueue(context.Background(), job(1, "late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrShuttingDown)
	r.Shutdown(ctx)
}

func TestRegistry_NoHandler(t *testing.T) {
	_, err := NewRegistry().Enqueue(context.Background(), job(1, "x"))
	assert.Error(t, err)
}
