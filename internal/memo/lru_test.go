package memo

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUUpdateExisting(t *testing.T) {
	c := NewLRU[string](1)
	c.Set("k", "v1")
	c.Set("k", "v2")

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Len())
}

func TestFuncCallsUnderlyingOncePerKey(t *testing.T) {
	calls := 0
	f := NewFunc(8, func(s string) int {
		calls++
		return len(s)
	})

	assert.Equal(t, 3, f.Call("abc"))
	assert.Equal(t, 3, f.Call("abc"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f.Len())
}

func TestFuncBounded(t *testing.T) {
	f := NewFunc(4, func(s string) string { return s + "!" })
	for i := 0; i < 100; i++ {
		f.Call(strconv.Itoa(i))
	}
	assert.Equal(t, 4, f.Len())
}

func TestFuncConcurrent(t *testing.T) {
	f := NewFunc(16, func(s string) string { return s })
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := strconv.Itoa((i + j) % 32)
				assert.Equal(t, k, f.Call(k))
			}
		}(i)
	}
	wg.Wait()
}
