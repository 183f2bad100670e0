package zombie

import (
	"context"
	"errors"
	"fmt"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/structures"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// RelayListSource looks up an account's cached NIP-65 relay list.
type RelayListSource interface {
	RelayList(pubkey string) (*nostr.RelayList, bool)
}

// Collector gathers recent events per account through a sequence of passes,
// each one only looking at accounts the previous passes left empty.
type Collector struct {
	querier  nostr.Querier
	lists    RelayListSource
	defaults []string
	settings Settings
	clock    Clock
	logger   providers.Logger
	metrics  providers.MetricsProviderInterface

	sleep func(ctx context.Context, d time.Duration)
}

func NewCollector(querier nostr.Querier, lists RelayListSource, defaults []string, settings Settings, clock Clock, logger providers.Logger, metrics providers.MetricsProviderInterface) *Collector {
	return &Collector{
		querier:  querier,
		lists:    lists,
		defaults: defaults,
		settings: settings,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		sleep:    sleepContext,
	}
}

func (c *Collector) Settings() Settings {
	return c.settings
}

// CollectActivity runs the broad batched scan. Every input pubkey is a key
// of the result, with an empty list when nothing was found.
func (c *Collector) CollectActivity(ctx context.Context, pubkeys []string, limit int) (ActivityMap, error) {
	if limit <= 0 {
		limit = c.settings.EventLimit
	}
	result, _, err := c.Run(ctx, []Pass{BroadPass(c.settings, limit)}, pubkeys, limit, nil)
	return result, err
}

// RetryWithPreferredRelays queries each account on its own write relays.
// Accounts without a cached relay list stay empty.
func (c *Collector) RetryWithPreferredRelays(ctx context.Context, pubkeys []string) (ActivityMap, error) {
	limit := c.settings.EventLimit
	result, _, err := c.Run(ctx, []Pass{PreferredRelaysPass(c.settings, limit, c.lists)}, pubkeys, limit, nil)
	return result, err
}

// RetryExhaustive is the last resort for accounts still empty: all kinds over
// all time per account, then text notes only.
func (c *Collector) RetryExhaustive(ctx context.Context, pubkeys []string) (ActivityMap, error) {
	limit := c.settings.EventLimit
	result, _, err := c.Run(ctx, ExhaustivePasses(c.settings, c.defaults, c.lists), pubkeys, limit, nil)
	return result, err
}

// Passes returns the full wave sequence for limit events per account.
func (c *Collector) Passes(limit int) []Pass {
	passes := []Pass{
		BroadPass(c.settings, limit),
		PreferredRelaysPass(c.settings, limit, c.lists),
	}
	return append(passes, ExhaustivePasses(c.settings, c.defaults, c.lists)...)
}

// Collect runs every wave in order.
func (c *Collector) Collect(ctx context.Context, pubkeys []string, limit int, listener ProgressListener) (ActivityMap, []PassStats, error) {
	if limit <= 0 {
		limit = c.settings.EventLimit
	}
	return c.Run(ctx, c.Passes(limit), pubkeys, limit, listener)
}

// Run executes passes in order. Each pass only sees the accounts that are
// still empty, and results are merged so a found event is never dropped.
// Cancellation is honoured between batches; the partial map is returned
// together with the context error.
func (c *Collector) Run(ctx context.Context, passes []Pass, pubkeys []string, limit int, listener ProgressListener) (ActivityMap, []PassStats, error) {
	targets, err := normalizePubkeys(pubkeys)
	if err != nil {
		return nil, nil, err
	}
	listener = listenerOrNop(listener)

	result := make(ActivityMap, len(targets))
	for _, pk := range targets {
		result[pk] = []Activity{}
	}
	resolved := newResolvedSet(targets)

	stats := make([]PassStats, 0, len(passes))
	for _, pass := range passes {
		unresolved := resolved.pending()
		if len(unresolved) == 0 {
			break
		}
		ps, err := c.runPass(ctx, pass, unresolved, result, resolved, limit, listener)
		stats = append(stats, ps)
		c.logger.Infof(providers.TypeScan, "pass %s: queried=%d resolved=%d timeouts=%d failures=%d",
			ps.Name, ps.Queried, ps.Resolved, ps.Timeouts, ps.Failures)
		if err != nil {
			return result, stats, err
		}
	}
	return result, stats, nil
}

type batch struct {
	authors []string
	relays  []string
}

func (c *Collector) runPass(ctx context.Context, pass Pass, pubkeys []string, result ActivityMap, resolved *resolvedSet, limit int, listener ProgressListener) (PassStats, error) {
	stats := PassStats{Name: pass.Name}
	batches := planBatches(pass, pubkeys)
	for _, b := range batches {
		stats.Queried += len(b.authors)
	}

	processed := 0
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if i > 0 && pass.Delay > 0 {
			c.sleep(ctx, pass.Delay)
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		found, outcome := c.fetch(ctx, pass, b)
		c.metrics.IncRelayQueries(pass.Name, outcome)
		stats.Batches++
		switch outcome {
		case providers.OutcomeTimeout:
			stats.Timeouts++
		case providers.OutcomeError:
			stats.Failures++
		}

		for _, pk := range b.authors {
			if len(found[pk]) > 0 {
				stats.Resolved++
				resolved.add(pk)
			}
		}
		result.Merge(found, limit)

		processed += len(b.authors)
		listener.OnProgress(Progress{
			Stage:        pass.Name,
			Processed:    processed,
			Total:        stats.Queried,
			ZombiesFound: resolved.remaining(),
		})
	}
	return stats, nil
}

// fetch runs one batch. The query is detached from cancellation so a batch in
// flight always completes or times out; a timeout or relay error yields no
// events.
func (c *Collector) fetch(ctx context.Context, pass Pass, b batch) (ActivityMap, string) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pass.Timeout)
	defer cancel()

	filter := pass.Filter(b.authors, c.clock.Now())
	events, err := c.querier.QueryEvents(qctx, b.relays, filter)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warnf(providers.TypeScan, "%s: batch of %d timed out after %s", pass.Name, len(b.authors), pass.Timeout)
		return nil, providers.OutcomeTimeout
	case err != nil:
		c.logger.Warnf(providers.TypeScan, "%s: batch of %d failed: %s", pass.Name, len(b.authors), err)
		return nil, providers.OutcomeError
	}

	wanted := make(map[string]struct{}, len(b.authors))
	for _, pk := range b.authors {
		wanted[pk] = struct{}{}
	}
	found := make(ActivityMap)
	for _, ev := range events {
		if _, ok := wanted[ev.PubKey]; !ok {
			continue
		}
		found[ev.PubKey] = append(found[ev.PubKey], activityFrom(ev))
	}
	if len(found) == 0 {
		return found, providers.OutcomeEmpty
	}
	return found, providers.OutcomeHit
}

func planBatches(pass Pass, pubkeys []string) []batch {
	size := max(pass.BatchSize, 1)

	type target struct {
		pubkey string
		relays []string
	}
	var targets []target
	for _, pk := range pubkeys {
		if pass.Relays == nil {
			targets = append(targets, target{pubkey: pk})
			continue
		}
		relays, ok := pass.Relays(pk)
		if !ok {
			continue
		}
		targets = append(targets, target{pubkey: pk, relays: relays})
	}

	var batches []batch
	for start := 0; start < len(targets); start += size {
		var b batch
		for _, t := range targets[start:min(start+size, len(targets))] {
			b.authors = append(b.authors, t.pubkey)
			for _, r := range t.relays {
				b.relays = appendMissing(b.relays, r)
			}
		}
		batches = append(batches, b)
	}
	return batches
}

// resolvedSet tracks the targets that already have at least one event, by
// position in the sorted target list.
type resolvedSet struct {
	targets []string
	index   map[string]uint32
	bits    *roaring.Bitmap
}

func newResolvedSet(targets []string) *resolvedSet {
	index := make(map[string]uint32, len(targets))
	for i, pk := range targets {
		index[pk] = uint32(i)
	}
	return &resolvedSet{targets: targets, index: index, bits: roaring.New()}
}

func (s *resolvedSet) add(pubkey string) {
	if i, ok := s.index[pubkey]; ok {
		s.bits.Add(i)
	}
}

// remaining is the number of targets still without any event.
func (s *resolvedSet) remaining() int {
	return len(s.targets) - int(s.bits.GetCardinality())
}

// pending returns the targets still without events, in sorted order.
func (s *resolvedSet) pending() []string {
	out := make([]string, 0, len(s.targets)-int(s.bits.GetCardinality()))
	for i, pk := range s.targets {
		if !s.bits.Contains(uint32(i)) {
			out = append(out, pk)
		}
	}
	return out
}

func normalizePubkeys(pubkeys []string) ([]string, error) {
	if len(pubkeys) == 0 {
		return nil, ErrNoPubkeys
	}
	seen := make(map[string]struct{}, len(pubkeys))
	out := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		if !nostr.ValidPubkey(pk) {
			return nil, fmt.Errorf("%w: %q", nostr.ErrInvalidPubkey, pk)
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	sort.Strings(out)
	return out, nil
}

func appendMissing(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NewConfiguredCollector builds a collector from the scan section of conf.
func NewConfiguredCollector(conf *structures.Config, querier nostr.Querier, lists RelayListSource, clock Clock, logger providers.Logger, metrics providers.MetricsProviderInterface) *Collector {
	return NewCollector(querier, lists, conf.Relays.Default, SettingsFromConfig(&conf.Scan), clock, logger, metrics)
}
