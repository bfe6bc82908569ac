// Package zone implements the suffix-match zone router: choosing which
// configured upstreams a question should be raced against.
package zone

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
)

// falsePositiveRate bounds the bloom pre-filter's false-accept probability;
// it never produces a false reject, which is the only property Choose
// depends on for correctness.
const falsePositiveRate = 0.01

// Router selects the candidate upstreams for a question by zone suffix
// match (every matching server, not only the most specific one), falling
// back to the configured defaults. Grounded on the
// zonecache's mutex-guarded-map shape, generalized to a different question
// (which upstreams to race, not which records are authoritative).
type Router struct {
	mu      sync.RWMutex
	config  domain.Configuration
	zoneSet *bloom.BloomFilter
}

// NewRouter builds a Router over config. The Bloom filter is sized to the
// total number of configured zone entries, rebuilt whenever Reconfigure
// installs a new Configuration.
func NewRouter(config domain.Configuration) *Router {
	r := &Router{}
	r.Reconfigure(config)
	return r
}

// Reconfigure atomically swaps the active configuration, rebuilding the
// fast-reject filter. Safe to call concurrently with Choose.
func (r *Router) Reconfigure(config domain.Configuration) {
	zoneCount := 0
	for _, s := range config.Servers {
		zoneCount += len(s.Zones)
	}
	if zoneCount == 0 {
		zoneCount = 1 // bloom.NewWithEstimates requires n >= 1
	}
	filter := bloom.NewWithEstimates(uint(zoneCount), falsePositiveRate)
	for _, s := range config.Servers {
		for _, z := range s.Zones {
			filter.Add([]byte(z.String()))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config
	r.zoneSet = filter
}

// Choose returns the set of servers that should be raced for question:
// zoned servers whose zone is a suffix of question win; if none match, the
// configured defaults (zones = ∅) are returned instead.
func (r *Router) Choose(question domain.Name) []domain.ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.mightMatchAnyZone(question) {
		var matched []domain.ServerConfig
		for _, s := range r.config.Servers {
			if s.Matches(question) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}

	var defaults []domain.ServerConfig
	for _, s := range r.config.Servers {
		if s.IsDefault() {
			defaults = append(defaults, s)
		}
	}
	return defaults
}

// mightMatchAnyZone fast-rejects questions that cannot possibly match any
// configured zone by testing every suffix of question against the Bloom
// filter. Since every configured zone string was Added verbatim, a
// question whose exact zone was registered always makes the filter answer
// true for at least one suffix - the filter never produces a false
// negative, only (rarely) a false positive that falls through to the real
// per-server scan above.
func (r *Router) mightMatchAnyZone(question domain.Name) bool {
	for i := 0; i < len(question); i++ {
		suffix := question[i:]
		if r.zoneSet.Test([]byte(suffix.String())) {
			return true
		}
	}
	return false
}
