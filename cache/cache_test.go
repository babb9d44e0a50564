package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_DeterministicAndNamespaced(t *testing.T) {
	payload := map[string]any{"business_type": "교육", "service_type": "신청"}

	k1 := Key(NamespaceAnalysis, payload)
	k2 := Key(NamespaceAnalysis, map[string]any{"service_type": "신청", "business_type": "교육"})
	assert.Equal(t, k1, k2, "map key order must not change the fingerprint")

	k3 := Key(NamespaceGeneration, payload)
	assert.NotEqual(t, k1, k3)

	assert.Regexp(t, `^request_analysis:[0-9a-f]{16}$`, k1)
}

func TestCache_SetGet(t *testing.T) {
	c := New(Config{})

	key := Key(NamespaceAnalysis, "수강 신청 안내")
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, "analyzed")
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "analyzed", got)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(Config{TTL: time.Hour})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", "v")

	now = now.Add(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(Config{MaxSize: 200})
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 200; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		now = now.Add(time.Second)
	}
	// Touch k0 so it becomes the most recently used entry.
	_, ok := c.Get("k0")
	require.True(t, ok)
	now = now.Add(time.Second)

	// One more insert pushes past MaxSize and trims to MaxSize-100.
	c.Set("k200", 200)
	assert.Equal(t, 100, c.Len())

	_, ok = c.Get("k0")
	assert.True(t, ok, "recently used entry must survive eviction")
	_, ok = c.Get("k1")
	assert.False(t, ok, "least recently used entry must be evicted")
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := New(Config{TTL: time.Minute, MaxSize: 1000})
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("old%d", i), i)
	}
	now = now.Add(2 * time.Minute)

	// Inserts 51..100; the 100th triggers a sweep that drops the expired half.
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("new%d", i), i)
	}
	assert.Equal(t, 50, c.Len())
}

func TestCache_Stats(t *testing.T) {
	c := New(Config{})

	c.Set("k", "v")
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
	assert.InDelta(t, 0.5, stats["hit_rate"].(float64), 1e-9)
	assert.Equal(t, 1, stats["size"])
}

type recordingObserver struct {
	hits   map[string]int
	misses map[string]int
}

func (o *recordingObserver) CacheHit(namespace string)  { o.hits[namespace]++ }
func (o *recordingObserver) CacheMiss(namespace string) { o.misses[namespace]++ }

func TestCache_Observer(t *testing.T) {
	obs := &recordingObserver{hits: map[string]int{}, misses: map[string]int{}}
	c := New(Config{Observer: obs})

	key := Key(NamespaceAnalysis, "수강 신청 안내")
	c.Get(key)
	c.Set(key, "analyzed")
	c.Get(key)
	c.Get(key)

	assert.Equal(t, 1, obs.misses[NamespaceAnalysis])
	assert.Equal(t, 2, obs.hits[NamespaceAnalysis])
}

func TestCache_Clear(t *testing.T) {
	c := New(Config{})
	c.Set("k", "v")
	c.Clear()

	assert.Zero(t, c.Len())
	_, ok := c.Get("k")
	assert.False(t, ok)
}
