// Package memo provides bounded memoization for pure string functions.
package memo

import (
	"container/list"
	"sync"
)

type entry[V any] struct {
	key   string
	value V
}

// LRU is a fixed-capacity least-recently-used cache. It is safe for concurrent use.
type LRU[V any] struct {
	mu    sync.Mutex
	max   int
	items map[string]*list.Element
	order *list.List
}

// NewLRU returns a cache holding at most maxSize entries. maxSize < 1 is treated as 1.
func NewLRU[V any](maxSize int) *LRU[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRU[V]{
		max:   maxSize,
		items: make(map[string]*list.Element, maxSize),
		order: list.New(),
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[V]).value, true
}

func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	if len(c.items) > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
	}
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Func wraps a pure function with an LRU of the given size.
type Func[V any] struct {
	fn    func(string) V
	cache *LRU[V]
}

func NewFunc[V any](size int, fn func(string) V) *Func[V] {
	return &Func[V]{fn: fn, cache: NewLRU[V](size)}
}

func (f *Func[V]) Call(key string) V {
	if v, ok := f.cache.Get(key); ok {
		return v
	}
	v := f.fn(key)
	f.cache.Set(key, v)
	return v
}

// Len reports how many results are cached.
func (f *Func[V]) Len() int { return f.cache.Len() }
