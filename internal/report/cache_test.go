package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/store"
)

func cacheQuery(runID, category string) store.AreaQuery {
	return store.AreaQuery{
		RunID:    runID,
		Category: category,
		Level:    model.AreaLevelSA1,
		Weight:   model.WeightDwellings,
		Metric:   model.MetricSoft,
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(4, time.Minute)
	q := cacheQuery("run-1", "supermarket")
	rep := &Report{RunID: "run-1", Category: "supermarket"}

	assert.Nil(t, c.Get(q))
	c.Put(q, rep)
	assert.Same(t, rep, c.Get(q))

	// A different grain is a different key.
	other := cacheQuery("run-1", "pharmacy")
	assert.Nil(t, c.Get(other))
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(4, 10*time.Millisecond)
	q := cacheQuery("run-1", "supermarket")
	c.Put(q, &Report{RunID: "run-1"})

	time.Sleep(25 * time.Millisecond)
	assert.Nil(t, c.Get(q))

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2, time.Minute)
	qa := cacheQuery("run-a", "supermarket")
	qb := cacheQuery("run-b", "supermarket")
	qc := cacheQuery("run-c", "supermarket")

	c.Put(qa, &Report{RunID: "run-a"})
	c.Put(qb, &Report{RunID: "run-b"})

	// Touch A so B becomes the eviction candidate.
	require.NotNil(t, c.Get(qa))

	c.Put(qc, &Report{RunID: "run-c"})

	assert.Nil(t, c.Get(qb))
	assert.NotNil(t, c.Get(qa))
	assert.NotNil(t, c.Get(qc))
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestCache_UpdateInPlace(t *testing.T) {
	c := NewCache(2, time.Minute)
	q := cacheQuery("run-1", "supermarket")

	c.Put(q, &Report{RunID: "run-1", Category: "old"})
	fresh := &Report{RunID: "run-1", Category: "new"}
	c.Put(q, fresh)

	assert.Equal(t, 1, c.Stats().Entries)
	assert.Same(t, fresh, c.Get(q))
}

func TestCache_Stats(t *testing.T) {
	c := NewCache(4, time.Minute)
	q := cacheQuery("run-1", "supermarket")

	c.Get(q) // miss
	c.Put(q, &Report{RunID: "run-1"})
	c.Get(q) // hit
	c.Get(q) // hit

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 4, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}
