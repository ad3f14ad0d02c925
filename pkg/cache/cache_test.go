package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/models"
)

func testBundle(content string) models.Bundle {
	return models.Bundle{
		models.ContentTypeBlog: {Type: models.ContentTypeBlog, Content: content},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	_, state := c.Lookup("fp1")
	assert.Equal(t, Miss, state)

	leader, follower := c.Begin("fp1")
	require.NotNil(t, leader)
	require.Nil(t, follower)

	c.Publish(leader, testBundle("hello"), time.Hour)

	got, state := c.Lookup("fp1")
	require.Equal(t, Hit, state)
	assert.Equal(t, "hello", got[models.ContentTypeBlog].Content)
}

func TestCacheExpiry(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	leader, _ := c.Begin("fp1")
	c.Publish(leader, testBundle("stale"), -time.Second)

	_, state := c.Lookup("fp1")
	assert.Equal(t, Miss, state)
}

func TestCacheLookupReturnsClone(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	leader, _ := c.Begin("fp1")
	c.Publish(leader, testBundle("original"), time.Hour)

	got, _ := c.Lookup("fp1")
	entry := got[models.ContentTypeBlog]
	entry.Content = "mutated"
	got[models.ContentTypeBlog] = entry

	again, _ := c.Lookup("fp1")
	assert.Equal(t, "original", again[models.ContentTypeBlog].Content)
}

func TestCacheInFlight(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	leader, _ := c.Begin("fp1")
	require.NotNil(t, leader)

	_, state := c.Lookup("fp1")
	assert.Equal(t, InFlight, state)

	c.Abort(leader, nil)
	_, state = c.Lookup("fp1")
	assert.Equal(t, Miss, state)
}

// TestCacheSingleFlight runs a concurrent burst against one fingerprint and
// verifies exactly one caller leads while everyone observes the same bundle.
func TestCacheSingleFlight(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	const n = 32
	var leaders atomic.Int32
	results := make([]models.Bundle, n)
	errs := make([]error, n)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()

			leader, follower := c.Begin("fp1")
			if leader != nil {
				leaders.Add(1)
				time.Sleep(10 * time.Millisecond) // simulate the build
				c.Publish(leader, testBundle("built-once"), time.Hour)
				results[i] = testBundle("built-once")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results[i], errs[i] = follower.Wait(ctx)
		}(i)
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int32(1), leaders.Load(), "exactly one leader per fingerprint")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "built-once", results[i][models.ContentTypeBlog].Content)
	}
}

func TestCacheAbortReleasesFollowers(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	leader, _ := c.Begin("fp1")
	_, follower := c.Begin("fp1")
	require.NotNil(t, follower)

	c.Abort(leader, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, werr := follower.Wait(ctx)
	assert.ErrorIs(t, werr, ErrBuildAborted)
}

func TestCacheInvalidate(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	for _, fp := range []string{"a", "b", "c"} {
		leader, _ := c.Begin(fp)
		c.Publish(leader, testBundle(fp), time.Hour)
	}

	assert.Equal(t, 2, c.Invalidate("a", "b", "missing"))
	_, state := c.Lookup("c")
	assert.Equal(t, Hit, state)

	assert.Equal(t, 1, c.InvalidateAll())
	_, state = c.Lookup("c")
	assert.Equal(t, Miss, state)
}

func TestCacheLRUCap(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	for _, fp := range []string{"a", "b", "c"} {
		leader, _ := c.Begin(fp)
		c.Publish(leader, testBundle(fp), time.Hour)
	}

	_, state := c.Lookup("a")
	assert.Equal(t, Miss, state, "oldest entry evicted by the cap")
	_, state = c.Lookup("c")
	assert.Equal(t, Hit, state)
}

func TestDisabledCache(t *testing.T) {
	c := NewDisabled()

	leader, follower := c.Begin("fp1")
	require.NotNil(t, leader, "every caller leads on a disabled cache")
	require.Nil(t, follower)

	c.Publish(leader, testBundle("x"), time.Hour)
	_, state := c.Lookup("fp1")
	assert.Equal(t, Miss, state)
	assert.True(t, c.Stats().Disabled)
}
