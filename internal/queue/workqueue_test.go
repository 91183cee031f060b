package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepr/heroshi-worker/internal/job"
)

func TestPutDeduplicatesByURL(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, job.Job{URL: "http://a.test/1"}))
	require.NoError(t, q.Put(ctx, job.Job{URL: "http://a.test/1"}))
	require.NoError(t, q.Put(ctx, job.Job{URL: "http://b.test/2"}))

	assert.Equal(t, 2, q.Len())
}

func TestTryGetFIFOOrder(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	_ = q.Put(ctx, job.Job{URL: "1"})
	_ = q.Put(ctx, job.Job{URL: "2"})

	j1, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, "1", j1.URL)

	j2, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, "2", j2.URL)

	_, ok = q.TryGet()
	assert.False(t, ok)
}

func TestPutBlocksWhenFullAndUnblocksOnGet(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, job.Job{URL: "1"}))

	done := make(chan error)
	go func() { done <- q.Put(ctx, job.Job{URL: "2"}) }()

	select {
	case <-done:
		t.Fatal("Put should have blocked on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.TryGet()
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put never unblocked after a slot freed")
	}
}

func TestPutReturnsOnContextCancellation(t *testing.T) {
	q := New(1)
	_ = q.Put(context.Background(), job.Job{URL: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- q.Put(ctx, job.Job{URL: "2"}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Put never returned after context cancellation")
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	urls := []string{"a", "b", "c", "d", "e"}
	for _, u := range urls {
		_ = q.Put(ctx, job.Job{URL: u})
	}
	q.Shuffle()

	seen := make(map[string]bool)
	for {
		j, ok := q.TryGet()
		if !ok {
			break
		}
		seen[j.URL] = true
	}
	for _, u := range urls {
		assert.True(t, seen[u])
	}
}

func TestCloseUnblocksPendingPut(t *testing.T) {
	q := New(1)
	_ = q.Put(context.Background(), job.Job{URL: "1"})

	done := make(chan error)
	go func() { done <- q.Put(context.Background(), job.Job{URL: "2"}) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Put never returned after Close")
	}
}
