package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionCache holds registry lookups in memory and serves them stale while
// one caller revalidates. Names that are not registered are remembered too, for
// the shorter miss TTL, so a connection added to the table shows up quickly.
type ConnectionCache struct {
	entries sync.Map // name -> *cachedConnection
	ttl     time.Duration
	missTTL time.Duration
}

type cachedConnection struct {
	conn       *Connection // nil: not registered
	freshUntil time.Time
	refreshing atomic.Bool
}

// CacheGetResult is what a lookup found.
type CacheGetResult struct {
	Connection *Connection
	// Hit reports a cached answer, fresh or stale, including "not registered".
	Hit bool
	// NeedsRefresh is set for exactly one caller per stale entry.
	NeedsRefresh bool
}

// NewConnectionCache returns a cache that keeps registered connections for ttl
// and unregistered names for missTTL. A missTTL <= 0 or above ttl uses ttl.
func NewConnectionCache(ttl, missTTL time.Duration) *ConnectionCache {
	if missTTL <= 0 || missTTL > ttl {
		missTTL = ttl
	}
	return &ConnectionCache{ttl: ttl, missTTL: missTTL}
}

// Get never blocks on the database.
func (c *ConnectionCache) Get(name string) CacheGetResult {
	v, ok := c.entries.Load(name)
	if !ok {
		return CacheGetResult{}
	}
	e := v.(*cachedConnection)
	res := CacheGetResult{Connection: e.conn, Hit: true}
	if !time.Now().Before(e.freshUntil) {
		res.NeedsRefresh = e.refreshing.CompareAndSwap(false, true)
	}
	return res
}

// Set records conn for name, or that name is not registered when conn is nil.
func (c *ConnectionCache) Set(name string, conn *Connection) {
	ttl := c.ttl
	if conn == nil {
		ttl = c.missTTL
	}
	c.entries.Store(name, &cachedConnection{conn: conn, freshUntil: time.Now().Add(ttl)})
}

// Delete forgets name so the next Get misses.
func (c *ConnectionCache) Delete(name string) {
	c.entries.Delete(name)
}
