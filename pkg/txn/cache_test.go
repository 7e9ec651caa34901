package txn

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkThenIsProcessed(t *testing.T) {
	t.Parallel()

	c := NewCache(0)
	require.False(t, c.IsProcessed("txn-1"))

	require.True(t, c.MarkProcessed("txn-1"))
	require.True(t, c.IsProcessed("txn-1"))

	require.False(t, c.MarkProcessed("txn-1"))
	require.Equal(t, 1, c.Len())
}

func TestOverflowEvictsOldestBlock(t *testing.T) {
	t.Parallel()

	c := NewCache(DefaultCapacity)
	for i := range DefaultCapacity + 1 {
		c.MarkProcessed(strconv.Itoa(i))
	}

	block := DefaultCapacity / 8
	for i := range block {
		require.False(t, c.IsProcessed(strconv.Itoa(i)), "id %d should be evicted", i)
	}
	for i := block; i <= DefaultCapacity; i++ {
		require.True(t, c.IsProcessed(strconv.Itoa(i)), "id %d should be kept", i)
	}
	require.Equal(t, DefaultCapacity-block+1, c.Len())
}

func TestEvictionWrapsAroundRing(t *testing.T) {
	t.Parallel()

	c := NewCache(16)
	for i := range 100 {
		c.MarkProcessed(strconv.Itoa(i))
		require.True(t, c.IsProcessed(strconv.Itoa(i)))
		require.LessOrEqual(t, c.Len(), 16)
	}
	require.True(t, c.IsProcessed("99"))
	require.False(t, c.IsProcessed("80"))
}

func TestSmallCapacityEvictsAtLeastOne(t *testing.T) {
	t.Parallel()

	c := NewCache(2)
	c.MarkProcessed("a")
	c.MarkProcessed("b")
	c.MarkProcessed("c")

	require.False(t, c.IsProcessed("a"))
	require.True(t, c.IsProcessed("b"))
	require.True(t, c.IsProcessed("c"))
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	c := NewCache(64)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				id := strconv.Itoa(w*1000 + i)
				c.MarkProcessed(id)
				_ = c.IsProcessed(id)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, c.Len(), 64)
}

func TestConcurrentMarkClaimsOnce(t *testing.T) {
	t.Parallel()

	c := NewCache(16)
	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	start := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.MarkProcessed("dup") {
				claimed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), claimed.Load())
}
