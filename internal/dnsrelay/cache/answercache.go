// Package cache provides a concrete implementation of the forwarder's
// answer-lookup hook. It is not consulted by the core for correctness - a
// forwarder with no cache configured behaves identically.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
)

// AnswerCache is an LRU-backed cache of raw response buffers keyed by
// question. Grounded on the teacher's dnsCache LRU shape, generalized from
// caching decoded resource records to caching the still-framed response
// buffer the forwarder already has in hand.
type AnswerCache struct {
	lru *lru.Cache[string, []byte]
}

// New returns an AnswerCache holding up to size entries.
func New(size int) (*AnswerCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &AnswerCache{lru: c}, nil
}

func cacheKey(q domain.Question) string {
	return fmt.Sprintf("%s|%d|%d", q.Name.String(), q.Type, q.Class)
}

// Lookup returns a copy of the cached response for q, if any. A copy is
// returned so a caller mutating bytes [0..2) (transaction id rewriting)
// never corrupts the cached entry for a different in-flight client.
func (c *AnswerCache) Lookup(q domain.Question) ([]byte, bool) {
	msg, ok := c.lru.Get(cacheKey(q))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	return out, true
}

// Store caches a copy of msg under q's key.
func (c *AnswerCache) Store(q domain.Question, msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.lru.Add(cacheKey(q), cp)
}

// Len returns the number of cached entries.
func (c *AnswerCache) Len() int {
	return c.lru.Len()
}
