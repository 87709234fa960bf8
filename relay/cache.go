package relay

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheSize is the number of transactions the dedup cache remembers.
const DefaultCacheSize = 1000

// Cache remembers transactions already seen from the network.
//
// Presence means the transaction was both seen and can be served again without a
// store lookup. Entries leave only through LRU eviction. Cache is not safe for
// concurrent use; the relay loop is its only user.
type Cache struct {
	lru *simplelru.LRU[chainhash.Hash, *wire.MsgTx]
}

// NewCache creates a cache holding at most size transactions.
// onEvict, if non-nil, is called for every entry pushed out by capacity.
func NewCache(size int, onEvict func(hash chainhash.Hash)) (*Cache, error) {
	var cb simplelru.EvictCallback[chainhash.Hash, *wire.MsgTx]
	if onEvict != nil {
		cb = func(hash chainhash.Hash, _ *wire.MsgTx) { onEvict(hash) }
	}
	l, err := simplelru.NewLRU[chainhash.Hash, *wire.MsgTx](size, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Contains reports whether hash is cached. It does not touch recency.
func (c *Cache) Contains(hash chainhash.Hash) bool {
	return c.lru.Contains(hash)
}

// Get returns the cached transaction and marks it most recently used.
func (c *Cache) Get(hash chainhash.Hash) (*wire.MsgTx, bool) {
	return c.lru.Get(hash)
}

// Insert stores tx under hash and marks it most recently used.
// It returns true iff hash was not cached before.
func (c *Cache) Insert(hash chainhash.Hash, tx *wire.MsgTx) bool {
	present := c.lru.Contains(hash)
	c.lru.Add(hash, tx)
	return !present
}

// Len returns the number of cached transactions.
func (c *Cache) Len() int {
	return c.lru.Len()
}
