// Package forwarder implements the fan-out/race engine: given a client
// query buffer, it fans out to the zone-chosen upstreams, races their
// replies against a fixed timeout, and returns the first success.
package forwarder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/clock"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/transport"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/upstream"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/zone"
)

// fanoutTimeout is the engine's outer wall-clock budget for a race.
const fanoutTimeout = 2 * time.Second

// AnswerCache is the optional answer-cache lookup hook. A nil cache makes
// Answer behave exactly as if none were configured.
type AnswerCache interface {
	Lookup(q domain.Question) (msg []byte, ok bool)
	Store(q domain.Question, msg []byte)
}

// Recorder observes fan-out dispatches for statistics purposes only; it is
// never consulted for routing or correctness decisions.
type Recorder interface {
	Observe(upstream domain.Address)
}

// Options configures a Forwarder. Network selects which wire protocol this
// engine speaks to its upstreams - the transport used downstream also
// governs the upstream hop, so one Forwarder instance is either a UDP
// forwarder or a TCP forwarder, never both.
type Options struct {
	Router  *zone.Router
	Network string // "udp" or "tcp"
	Dial    transport.DialFunc
	Clock   clock.Clock
	Logger  log.Logger

	// Cache and Stats are both optional; nil disables them.
	Cache AnswerCache
	Stats Recorder
}

// Forwarder is the fan-out/race engine. The zero value is not usable;
// construct with New.
type Forwarder struct {
	router  *zone.Router
	network string
	dial    transport.DialFunc
	clock   clock.Clock
	logger  log.Logger
	cache   AnswerCache
	stats   Recorder

	clientsMu sync.Mutex
	clients   map[string]*upstream.Client
}

// New constructs a Forwarder from opts, defaulting Dial/Clock/Logger the
// way the teacher's resolver constructor defaults its own optional fields.
func New(opts Options) *Forwarder {
	if opts.Dial == nil {
		opts.Dial = transport.DefaultDial
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Forwarder{
		router:  opts.Router,
		network: opts.Network,
		dial:    opts.Dial,
		clock:   opts.Clock,
		logger:  opts.Logger,
		cache:   opts.Cache,
		stats:   opts.Stats,
		clients: make(map[string]*upstream.Client),
	}
}

// Answer resolves a single client query. ok is false when the caller should
// drop the request silently: unparseable input, no candidate upstreams, or
// the race timed out with no success.
func (f *Forwarder) Answer(ctx context.Context, buf []byte) (response []byte, ok bool) {
	question, err := domain.ParseQuestion(buf)
	if err != nil {
		return nil, false
	}

	if f.cache != nil {
		if msg, hit := f.cache.Lookup(question); hit {
			if err := domain.SetMessageID(msg, question.ID); err != nil {
				return nil, false
			}
			return msg, true
		}
	}

	servers := f.router.Choose(question.Name)
	if len(servers) == 0 {
		return nil, false
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		buf []byte
		err error
	}
	results := make(chan outcome, len(servers))

	var errsMu sync.Mutex
	var errs []error

	for _, s := range servers {
		s := s
		if f.stats != nil {
			// Observe persists to disk (bbolt); run it off to the side so a
			// slow fsync never adds latency to the query it's counting.
			go f.stats.Observe(s.Address)
		}
		go func() {
			client := f.clientFor(s.Address)
			reqCopy := append([]byte(nil), buf...)
			resp, err := client.RPC(raceCtx, reqCopy)
			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
				results <- outcome{err: err}
				return
			}
			results <- outcome{buf: resp}
		}()
	}

	timeout := f.clock.NewTimer(fanoutTimeout)
	defer timeout.Stop()

	remaining := len(servers)
	for remaining > 0 {
		select {
		case res := <-results:
			remaining--
			if res.err == nil {
				if f.cache != nil {
					f.cache.Store(question, res.buf)
				}
				return res.buf, true
			}
		case <-timeout.C():
			f.logRaceFailure(question, &errsMu, &errs)
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}

	f.logRaceFailure(question, &errsMu, &errs)
	return nil, false
}

func (f *Forwarder) logRaceFailure(q domain.Question, mu *sync.Mutex, errs *[]error) {
	mu.Lock()
	combined := multierr.Combine((*errs)...)
	mu.Unlock()
	if combined == nil {
		return
	}
	f.logger.Warn(map[string]any{
		"question": q.Name.String(),
		"error":    combined.Error(),
	}, "no upstream answered")
}

// clientFor returns the persistent upstream.Client for addr, creating one
// on first use. Clients live for the lifetime of the Forwarder.
func (f *Forwarder) clientFor(addr domain.Address) *upstream.Client {
	key := addr.String()

	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c
	}
	c := upstream.New(addr, f.network, f.dial, f.clock, f.logger)
	f.clients[key] = c
	return c
}
