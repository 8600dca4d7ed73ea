package relay

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/echolock/echolock/internal/common"
)

// MinDistribution is the minimum number of distinct relays a share or
// heartbeat must be offered to, per spec.md §4.3.
const MinDistribution = 7

// MinQuorum is the minimum number of relays that must accept a
// publish for it to count as successfully distributed.
const MinQuorum = 5

// Pool fans a publish or retrieve out across a fixed set of relay
// URLs, tracking each relay's health across calls so a relay that is
// currently down does not eat a full dial timeout on every round.
type Pool struct {
	urls    []string
	clock   common.Clock
	mu      sync.Mutex
	healthy map[string]*health
	quorum  int
}

func NewPool(urls []string, clock common.Clock) *Pool {
	h := make(map[string]*health, len(urls))
	for _, u := range urls {
		h[u] = &health{}
	}
	return &Pool{urls: urls, clock: clock, healthy: h, quorum: MinQuorum}
}

// SetMinQuorum overrides the default MinQuorum with an
// operator-configured value (spec.md §6's MIN_RELAY_SUCCESS). n must
// be positive; callers validate that against the configured relay
// count before calling this.
func (p *Pool) SetMinQuorum(n int) {
	if n > 0 {
		p.quorum = n
	}
}

func (p *Pool) eligibleURLs() []string {
	now := p.clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, u := range p.urls {
		if p.healthy[u].eligible(now) {
			out = append(out, u)
		}
	}
	return out
}

func (p *Pool) record(url string, err error) {
	p.mu.Lock()
	h := p.healthy[url]
	p.mu.Unlock()
	if err != nil {
		h.recordFailure(p.clock.Now())
	} else {
		h.recordSuccess()
	}
}

// publishResult is one relay's outcome, used only to aggregate the
// quorum count and the multierror.
type publishResult struct {
	url string
	err error
}

// Publish offers e to every eligible relay in the pool concurrently
// and requires at least the pool's quorum of accepts (MinQuorum unless
// SetMinQuorum overrode it). It fails with QuorumNotMet before
// publishing anything if fewer than MinDistribution relays are
// eligible. It returns an error
// aggregating every per-relay failure when quorum is not reached,
// even though some relays may have accepted.
func (p *Pool) Publish(ctx context.Context, e *Event) error {
	urls := p.eligibleURLs()
	if len(urls) < MinDistribution {
		return common.NewError(common.KindQuorumNotMet, "fewer than the minimum distribution of relays are eligible", nil)
	}

	results := make(chan publishResult, len(urls))
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			err := p.publishOne(ctx, url, e)
			p.record(url, err)
			results <- publishResult{url: url, err: err}
		}(u)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var merr *multierror.Error
	accepted := 0
	for r := range results {
		if r.err == nil {
			accepted++
			continue
		}
		merr = multierror.Append(merr, common.NewError(common.KindRelayUnreachable, r.url, r.err))
	}

	if accepted < p.quorum {
		if merr != nil {
			return common.NewError(common.KindQuorumNotMet, "fewer than the minimum relays accepted the event", merr)
		}
		return common.NewError(common.KindQuorumNotMet, "fewer than the minimum relays accepted the event", nil)
	}
	return nil
}

func (p *Pool) publishOne(ctx context.Context, url string, e *Event) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := dial(dialCtx, url)
	if err != nil {
		return err
	}
	defer c.close()
	return c.publish(ctx, e)
}

// Retrieve subscribes to every eligible relay concurrently, merges
// and deduplicates the resulting events by id, and verifies each
// one's signature and id before returning it. Events that fail
// verification are dropped, not surfaced: a relay returning corrupted
// or forged data should not be able to poison a quorum read.
func (p *Pool) Retrieve(ctx context.Context, filter Filter) ([]*Event, error) {
	urls := p.eligibleURLs()
	if len(urls) == 0 {
		return nil, common.NewError(common.KindRelayUnreachable, "no eligible relays", nil)
	}

	out := make(chan *Event, 64)
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			err := p.retrieveOne(ctx, url, filter, out)
			p.record(url, err)
		}(u)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	seen := make(map[[32]byte]bool)
	var events []*Event
	for e := range out {
		if !e.Verify() {
			continue
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		events = append(events, e)
	}
	return events, nil
}

func (p *Pool) retrieveOne(ctx context.Context, url string, filter Filter, out chan<- *Event) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := dial(dialCtx, url)
	if err != nil {
		return err
	}
	defer c.close()
	return c.subscribe(ctx, "sub", filter, out)
}
