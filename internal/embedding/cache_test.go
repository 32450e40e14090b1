package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int32
	err   error
	delay time.Duration
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}
func (e *countingEmbedder) ModelName() string { return "test-model" }
func (e *countingEmbedder) Dimensions() int   { return 2 }

type memCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	failGet bool
	failSet bool
}

func newMemCache() *memCache { return &memCache{entries: map[string][]float32{}} }

func (m *memCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	if m.failGet {
		return nil, false, errors.New("down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, v []float32, _ time.Duration) error {
	if m.failSet {
		return errors.New("down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v
	return nil
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("m", "tempo  run")
	k2 := CacheKey("m", "tempo run")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, CacheKey("other", "tempo run"))
	assert.Regexp(t, `^emb:m:[0-9a-f]{64}$`, k1)
}

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newMemCache()
	c := NewCachedEmbedder(inner, cache, time.Minute)

	v1, err := c.Embed(context.Background(), "tempo")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "tempo")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
	assert.Len(t, cache.entries, 1)
	assert.Equal(t, "test-model", c.ModelName())
	assert.Equal(t, 2, c.Dimensions())
}

func TestCachedEmbedder_CacheFailuresAreIgnored(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newMemCache()
	cache.failGet, cache.failSet = true, true
	c := NewCachedEmbedder(inner, cache, time.Minute)

	v, err := c.Embed(context.Background(), "hill")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, v)
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{err: ErrMissingCredentials}
	cache := newMemCache()
	c := NewCachedEmbedder(inner, cache, time.Minute)

	_, err := c.Embed(context.Background(), "hill")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, cache.entries)
}

func TestCachedEmbedder_NilCacheSharesFlight(t *testing.T) {
	inner := &countingEmbedder{delay: 50 * time.Millisecond}
	c := NewCachedEmbedder(inner, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Embed(context.Background(), "long run")
			assert.NoError(t, err)
			assert.Equal(t, []float32{8, 1}, v)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&inner.calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&inner.calls), int32(1))
}

// gatedEmbedder blocks until released or until its context ends.
type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
}

func (e *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.once.Do(func() { close(e.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.release:
		return []float32{float32(len(text)), 1}, nil
	}
}
func (e *gatedEmbedder) ModelName() string { return "test-model" }
func (e *gatedEmbedder) Dimensions() int   { return 2 }

func TestCachedEmbedder_CancelledCallerDoesNotFailSharedCall(t *testing.T) {
	inner := newGatedEmbedder()
	cache := newMemCache()
	c := NewCachedEmbedder(inner, cache, time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Embed(firstCtx, "tempo run")
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Embed(context.Background(), "tempo run")
		second <- result{v, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(inner.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, []float32{9, 1}, r.vec)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Len(t, cache.entries, 1)
}

// slowConn is a redis connection whose commands block until the context ends.
type slowConn struct {
	calls int32
}

func (c *slowConn) Close() error                                   { return nil }
func (c *slowConn) Err() error                                     { return nil }
func (c *slowConn) Do(string, ...interface{}) (interface{}, error) { return nil, nil }
func (c *slowConn) Send(string, ...interface{}) error              { return nil }
func (c *slowConn) Flush() error                                   { return nil }
func (c *slowConn) Receive() (interface{}, error)                  { return nil, nil }

func (c *slowConn) DoContext(ctx context.Context, _ string, _ ...interface{}) (interface{}, error) {
	atomic.AddInt32(&c.calls, 1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *slowConn) ReceiveContext(ctx context.Context) (interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRedisCache_CommandsHonourContext(t *testing.T) {
	conn := &slowConn{}
	r := &RedisCache{pool: &redis.Pool{
		Dial: func() (redis.Conn, error) { return conn, nil },
	}}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, ok, err := r.Get(ctx, "emb:m:k")
	assert.Error(t, err)
	assert.False(t, ok)

	setCtx, cancelSet := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelSet()
	assert.Error(t, r.Set(setCtx, "emb:m:k", []float32{1}, time.Minute))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&conn.calls))
}
