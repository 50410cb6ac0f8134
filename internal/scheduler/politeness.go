// Package scheduler decides what to crawl and when: due-source selection,
// per-domain politeness, robots policy, discovery of article URLs, and
// outcome telemetry feedback.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
)

// Politeness enforces the crawl concurrency contract: a token-bucket rate
// limit and a concurrency cap per domain, under a global concurrency cap.
type Politeness struct {
	perDomainMax int
	globalSem    chan struct{}
	defaultRPS   rate.Limit

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewPoliteness builds the limiter set. defaultRPS applies to domains
// without an explicit override.
func NewPoliteness(perDomainMax, globalMax int, defaultRPS float64) *Politeness {
	if perDomainMax < 1 {
		perDomainMax = 1
	}
	if globalMax < 1 {
		globalMax = 1
	}
	if defaultRPS <= 0 {
		defaultRPS = 1
	}
	return &Politeness{
		perDomainMax: perDomainMax,
		globalSem:    make(chan struct{}, globalMax),
		defaultRPS:   rate.Limit(defaultRPS),
		domains:      make(map[string]*domainState),
	}
}

func (p *Politeness) state(domain string) *domainState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.domains[domain]
	if !ok {
		st = &domainState{
			limiter: rate.NewLimiter(p.defaultRPS, 1),
			sem:     make(chan struct{}, p.perDomainMax),
		}
		p.domains[domain] = st
	}
	return st
}

// Acquire blocks until the domain may be fetched, then returns a release
// function. The release function must be called exactly once.
func (p *Politeness) Acquire(ctx context.Context, domain string) (func(), error) {
	st := p.state(domain)

	select {
	case p.globalSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		<-p.globalSem
		return nil, ctx.Err()
	}

	reservation := st.limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		metrics.ObserveRateLimitDelay(domain, delay)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			reservation.Cancel()
			<-st.sem
			<-p.globalSem
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-st.sem
			<-p.globalSem
		})
	}
	return release, nil
}

// SetRate overrides a domain's request rate, typically from a robots.txt
// crawl-delay directive.
func (p *Politeness) SetRate(domain string, rps float64) {
	if rps <= 0 {
		return
	}
	p.state(domain).limiter.SetLimit(rate.Limit(rps))
}
