// Package stats persists per-upstream dispatch counters across restarts,
// implementing forwarder.Recorder. Counters are observational only - nothing
// in the engine reads them back to make routing or racing decisions.
package stats

import (
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
)

var bucketDispatches = []byte("dispatches")

// Counters is a bbolt-backed store of per-upstream dispatch counts, keyed by
// the upstream's address string.
type Counters struct {
	db *bbolt.DB
}

// Open opens (or creates) a Bolt database at path and ensures the counters
// bucket exists.
func Open(path string) (*Counters, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDispatches)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Counters{db: db}, nil
}

func (c *Counters) Close() error { return c.db.Close() }

// Observe increments upstream's dispatch counter by one. It satisfies
// forwarder.Recorder; errors are swallowed since an observability counter
// must never block or fail a live query.
func (c *Counters) Observe(upstream domain.Address) {
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDispatches)
		key := []byte(upstream.String())
		var count uint64
		if v := b.Get(key); len(v) == 8 {
			count = binary.BigEndian.Uint64(v)
		}
		count++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return b.Put(key, buf)
	})
}

// Get returns the current dispatch count for upstream.
func (c *Counters) Get(upstream domain.Address) (uint64, error) {
	var count uint64
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDispatches)
		if v := b.Get([]byte(upstream.String())); len(v) == 8 {
			count = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return count, err
}
