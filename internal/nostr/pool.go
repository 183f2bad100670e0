package nostr

import (
	"context"
	"errors"
	"fmt"
	"pvz/internal/providers"
	"pvz/internal/structures"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 5 * time.Second

	// relayBudgetPercent is the share of the caller's remaining time a single
	// relay may use, so a stalled relay gives up before the batch does.
	relayBudgetPercent = 80
)

var ErrNoRelays = errors.New("no relays to query")

// Querier runs one filter against a set of relays. An empty relay set means
// the default relays.
type Querier interface {
	QueryEvents(ctx context.Context, relays []string, filter Filter) ([]Event, error)
}

// Pool keeps one connection per relay url and fans queries out to them.
type Pool struct {
	defaults       []string
	dialer         *websocket.Dialer
	connectTimeout time.Duration
	queryTimeout   time.Duration
	logger         providers.Logger

	mu     sync.Mutex
	relays map[string]*Relay
}

func NewPool(conf *structures.Config, logger providers.Logger) *Pool {
	timeout := conf.Relays.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	var defaults []string
	for _, url := range conf.Relays.Default {
		if n := NormalizeURL(url); n != "" {
			defaults = appendUnique(defaults, n)
		}
	}

	return &Pool{
		defaults:       defaults,
		dialer:         &websocket.Dialer{HandshakeTimeout: timeout},
		connectTimeout: timeout,
		queryTimeout:   conf.Relays.QueryTimeout,
		logger:         logger,
		relays:         make(map[string]*Relay),
	}
}

func (p *Pool) DefaultRelays() []string {
	return append([]string(nil), p.defaults...)
}

func (p *Pool) relay(ctx context.Context, url string) (*Relay, error) {
	p.mu.Lock()
	if r, ok := p.relays[url]; ok && !r.Closed() {
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	r, err := ConnectRelay(dialCtx, p.dialer, url, p.logger)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.relays[url]; ok && !existing.Closed() {
		r.Close()
		return existing, nil
	}
	p.relays[url] = r
	p.logger.Debugf(providers.TypeRelay, "connected to %s", url)
	return r, nil
}

// QueryEvents queries every relay concurrently and merges the results,
// dropping duplicate ids. Each relay gets its own deadline, shorter than the
// caller's, and the events of every relay that answered are returned without
// error even when others stalled. A relay that sent events before stalling
// counts as answered. The query fails only when no relay answered; when ctx is
// cancelled the partial result is returned with ctx.Err().
func (p *Pool) QueryEvents(ctx context.Context, relays []string, filter Filter) ([]Event, error) {
	urls := p.resolve(relays)
	if len(urls) == 0 {
		return nil, ErrNoRelays
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seen     = make(map[string]struct{})
		events   []Event
		answered int
		timedOut bool
		lastErr  error
	)

	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			rctx, cancel := p.relayContext(ctx)
			defer cancel()

			var got []Event
			r, err := p.relay(rctx, url)
			if err == nil {
				got, err = r.Query(rctx, filter)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, ev := range got {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
				events = append(events, ev)
			}
			if err == nil || len(got) > 0 {
				answered++
			}
			if err != nil {
				lastErr = err
				if errors.Is(err, context.DeadlineExceeded) {
					timedOut = true
				}
				if ctx.Err() == nil {
					p.logger.Warnf(providers.TypeRelay, "query %s failed after %d events: %s", url, len(got), err)
				}
			}
		}(url)
	}
	wg.Wait()

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return events, err
	}
	if answered > 0 {
		return events, nil
	}
	if err := ctx.Err(); err != nil {
		return events, err
	}
	if timedOut {
		return nil, fmt.Errorf("all %d relays failed: %w", len(urls), context.DeadlineExceeded)
	}
	return nil, fmt.Errorf("all %d relays failed: %w", len(urls), lastErr)
}

// relayContext bounds one relay's share of a query. Without a caller deadline
// only the configured query timeout applies.
func (p *Pool) relayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := p.queryTimeout
	if deadline, ok := ctx.Deadline(); ok {
		share := time.Until(deadline) * relayBudgetPercent / 100
		if budget <= 0 || share < budget {
			budget = share
		}
	}
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

func (p *Pool) resolve(relays []string) []string {
	if len(relays) == 0 {
		return p.DefaultRelays()
	}
	var urls []string
	for _, url := range relays {
		if n := NormalizeURL(url); n != "" {
			urls = appendUnique(urls, n)
		}
	}
	return urls
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, r := range p.relays {
		r.Close()
		delete(p.relays, url)
	}
}
