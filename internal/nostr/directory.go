package nostr

import (
	"context"
	"fmt"
	"pvz/internal/providers"
	"pvz/internal/structures"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultDirectoryBatch   = 50
	defaultProfileLimit     = 20
	defaultDirectoryTimeout = 15 * time.Second
	relayListKeyPrefix      = "relays:"
)

// Directory answers account level lookups: follow lists, profile history and
// NIP-65 relay lists. Relay lists are kept for the process lifetime and
// mirrored into the shared cache so later scans can skip refetching them.
type Directory struct {
	querier      Querier
	cache        providers.CacheProviderInterface
	logger       providers.Logger
	batchSize    int
	profileLimit int
	timeout      time.Duration

	mu    sync.RWMutex
	lists map[string]*RelayList
}

func NewDirectory(querier Querier, cache providers.CacheProviderInterface, conf *structures.Config, logger providers.Logger) *Directory {
	d := &Directory{
		querier:      querier,
		cache:        cache,
		logger:       logger,
		batchSize:    conf.Scan.RelayListBatchSize,
		profileLimit: conf.Scan.ProfileLimit,
		timeout:      conf.Scan.BatchTimeout,
		lists:        make(map[string]*RelayList),
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultDirectoryBatch
	}
	if d.profileLimit <= 0 {
		d.profileLimit = defaultProfileLimit
	}
	if d.timeout <= 0 {
		d.timeout = defaultDirectoryTimeout
	}
	return d
}

// Follows returns the pubkeys in owner's latest contact list, in list order
// and without duplicates.
func (d *Directory) Follows(ctx context.Context, owner string) ([]string, error) {
	if !ValidPubkey(owner) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPubkey, owner)
	}

	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	events, err := d.querier.QueryEvents(qctx, nil, Filter{
		Kinds:   []int{KindContacts},
		Authors: []string{owner},
		Limit:   1,
	})
	if err != nil && len(events) == 0 {
		return nil, fmt.Errorf("fetch contact list: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	SortNewestFirst(events)
	seen := make(map[string]struct{})
	var follows []string
	for _, pk := range events[0].TagValues("p") {
		if !ValidPubkey(pk) {
			continue
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		follows = append(follows, pk)
	}
	return follows, nil
}

// PrefetchRelayLists loads NIP-65 relay lists for pubkeys not already known
// and returns how many pubkeys have a list afterwards.
func (d *Directory) PrefetchRelayLists(ctx context.Context, pubkeys []string) int {
	var missing []string
	for _, pk := range pubkeys {
		if _, ok := d.RelayList(pk); !ok {
			missing = append(missing, pk)
		}
	}

	for start := 0; start < len(missing); start += d.batchSize {
		if ctx.Err() != nil {
			break
		}
		batch := missing[start:min(start+d.batchSize, len(missing))]

		qctx, cancel := context.WithTimeout(ctx, d.timeout)
		events, err := d.querier.QueryEvents(qctx, nil, Filter{
			Kinds:   []int{KindRelayList},
			Authors: batch,
			Limit:   len(batch) * 2,
		})
		cancel()
		if err != nil {
			d.logger.Warnf(providers.TypeRelay, "relay list batch of %d: %s", len(batch), err)
		}

		for pk, ev := range latestByAuthor(events) {
			d.store(pk, ParseRelayList(ev))
		}
	}

	found := 0
	for _, pk := range pubkeys {
		if _, ok := d.RelayList(pk); ok {
			found++
		}
	}
	return found
}

// RelayList returns the cached relay list for pubkey, if any.
func (d *Directory) RelayList(pubkey string) (*RelayList, bool) {
	d.mu.RLock()
	rl, ok := d.lists[pubkey]
	d.mu.RUnlock()
	if ok {
		return rl, true
	}

	key := relayListKeyPrefix + pubkey
	data, ok := d.cache.Get(key)
	if !ok {
		return nil, false
	}
	rl = &RelayList{}
	if err := json.Unmarshal(data, rl); err != nil {
		// unreadable entries are dropped so the next prefetch refetches them
		d.cache.Del(key)
		d.logger.Debugf(providers.TypeRelay, "dropped unreadable relay list for %s: %s", pubkey, err)
		return nil, false
	}
	d.mu.Lock()
	d.lists[pubkey] = rl
	d.mu.Unlock()
	return rl, true
}

func (d *Directory) store(pubkey string, rl *RelayList) {
	d.mu.Lock()
	d.lists[pubkey] = rl
	d.mu.Unlock()

	if data, err := json.Marshal(rl); err == nil {
		d.cache.Set(relayListKeyPrefix+pubkey, data)
	}
}

// Profiles returns each account's kind 0 history, newest first. Accounts
// without any profile event are absent from the result.
func (d *Directory) Profiles(ctx context.Context, pubkeys []string) map[string][]Event {
	profiles := make(map[string][]Event)
	for start := 0; start < len(pubkeys); start += d.batchSize {
		if ctx.Err() != nil {
			break
		}
		batch := pubkeys[start:min(start+d.batchSize, len(pubkeys))]

		qctx, cancel := context.WithTimeout(ctx, d.timeout)
		events, err := d.querier.QueryEvents(qctx, nil, Filter{
			Kinds:   []int{KindProfile},
			Authors: batch,
			Limit:   len(batch) * d.profileLimit,
		})
		cancel()
		if err != nil {
			d.logger.Warnf(providers.TypeRelay, "profile batch of %d: %s", len(batch), err)
		}
		for _, ev := range events {
			profiles[ev.PubKey] = append(profiles[ev.PubKey], ev)
		}
	}

	for pk, evs := range profiles {
		SortNewestFirst(evs)
		if len(evs) > d.profileLimit {
			evs = evs[:d.profileLimit]
		}
		profiles[pk] = evs
	}
	return profiles
}

func latestByAuthor(events []Event) map[string]Event {
	latest := make(map[string]Event)
	for _, ev := range events {
		if cur, ok := latest[ev.PubKey]; !ok || ev.CreatedAt > cur.CreatedAt {
			latest[ev.PubKey] = ev
		}
	}
	return latest
}
