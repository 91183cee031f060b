package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCreatesViaFactory(t *testing.T) {
	var calls int32
	factory := func(key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return len(key), nil
	}
	p := New(factory, 2, time.Minute)
	defer p.Close()

	v, err := p.Get(context.Background(), "hello", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPutReusesResource(t *testing.T) {
	var calls int32
	factory := func(key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return int(atomic.LoadInt32(&calls)), nil
	}
	p := New(factory, 1, time.Minute)
	defer p.Close()

	ctx := context.Background()
	v1, err := p.Get(ctx, "k", 0)
	require.NoError(t, err)
	p.Put("k", v1)

	v2, err := p.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "expected the idle resource to be reused rather than re-created")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetBlocksWhenSaturatedThenTimesOut(t *testing.T) {
	factory := func(key string) (int, error) { return 1, nil }
	p := New(factory, 1, time.Minute)
	defer p.Close()

	ctx := context.Background()
	v, err := p.Get(ctx, "k", 0)
	require.NoError(t, err)

	_, err = p.Get(ctx, "k", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPoolTimeout)

	p.Put("k", v)
}

func TestGetUnblocksOnPut(t *testing.T) {
	factory := func(key string) (int, error) { return 1, nil }
	p := New(factory, 1, time.Minute)
	defer p.Close()

	ctx := context.Background()
	v, err := p.Get(ctx, "k", 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, err := p.Get(ctx, "k", time.Second)
		assert.NoError(t, err)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Put("k", v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Put")
	}
}

func TestWithResourceReleasesOnError(t *testing.T) {
	factory := func(key string) (int, error) { return 1, nil }
	p := New(factory, 1, time.Minute)
	defer p.Close()

	err := p.WithResource(context.Background(), "k", 0, func(int) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// If the resource was released, a subsequent Get does not block.
	done := make(chan struct{})
	go func() {
		_, err := p.Get(context.Background(), "k", time.Second)
		assert.NoError(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resource was not released after WithResource returned an error")
	}
}

func TestConcurrentBorrowRespectsMaxSize(t *testing.T) {
	var active int32
	var maxObserved int32
	factory := func(key string) (int, error) { return 0, nil }
	p := New(factory, 3, time.Minute)
	defer p.Close()

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.Get(context.Background(), "k", time.Second)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			p.Put("k", v)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, int(maxObserved), 3)
}
