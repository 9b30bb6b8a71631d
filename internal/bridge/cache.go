// ABOUTME: In-memory tool-definition cache keyed by credential
// ABOUTME: Size-limited with O(1) LRU eviction via a doubly-linked list

package bridge

import (
	"container/list"
	"sync"
)

// DefaultCacheSize bounds how many credentials can hold cached tool sets.
const DefaultCacheSize = 32

// ToolCache stores wrapped tool sets keyed by the raw credential value.
// Implementations must be safe for concurrent use. Definitions are pure
// data; there is no connection state behind a cache entry.
type ToolCache interface {
	Get(credential string) (map[string]Tool, bool)
	Put(credential string, tools map[string]Tool)
	Clear()
}

// cacheEntry stores the tool set and list element for a cached credential.
type cacheEntry struct {
	tools   map[string]Tool
	element *list.Element
}

// MemoryCache is a thread-safe, size-limited ToolCache. Entries live for the
// process lifetime or until Clear; there is no TTL because tool definitions
// only change when the upstream server does, and callers reset via Clear.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // credentials in use order (least recent at front)
	maxSize int
}

// NewMemoryCache creates a cache holding at most maxSize credentials.
// A non-positive size falls back to DefaultCacheSize.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns the cached tool set for the credential, if present.
func (c *MemoryCache) Get(credential string) (map[string]Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[credential]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(entry.element)
	return entry.tools, true
}

// Put stores a tool set for the credential. At capacity, the least recently
// used credential is evicted. Concurrent discoverers for the same credential
// race benignly; last writer wins.
func (c *MemoryCache) Put(credential string, tools map[string]Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[credential]; exists {
		entry.tools = tools
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(credential)
	c.entries[credential] = &cacheEntry{
		tools:   tools,
		element: elem,
	}
}

// Clear drops every cached tool set.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
}

// evictOldest removes the least recently used entry. Must be called with mu
// held.
func (c *MemoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	credential, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, credential)
}

// Ensure MemoryCache implements ToolCache.
var _ ToolCache = (*MemoryCache)(nil)
