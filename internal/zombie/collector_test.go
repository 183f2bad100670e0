package zombie_test

import (
	"context"
	"errors"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/structures"
	"pvz/internal/testutil"
	"pvz/internal/zombie"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() zombie.Settings {
	s := zombie.DefaultSettings()
	s.BatchSize = 2
	s.BatchDelay = 0
	s.BatchTimeout = 100 * time.Millisecond
	s.RetryTimeout = 100 * time.Millisecond
	s.ExhaustiveTimeout = 100 * time.Millisecond
	return s
}

func textNote(id, author string, createdAt int64) nostr.Event {
	return nostr.Event{ID: id, PubKey: author, Kind: nostr.KindTextNote, CreatedAt: createdAt}
}

type collectorFixture struct {
	querier *testutil.MockQuerier
	lists   staticLists
	metrics *testutil.MockMetrics
	logger  *testutil.MockLogger
}

func newFixture() *collectorFixture {
	return &collectorFixture{
		querier: &testutil.MockQuerier{Events: map[string][]nostr.Event{}},
		lists:   staticLists{},
		metrics: &testutil.MockMetrics{},
		logger:  &testutil.MockLogger{},
	}
}

func (f *collectorFixture) collector() *zombie.Collector {
	return zombie.NewCollector(f.querier, f.lists, nil, testSettings(), zombie.FixedClock{At: now}, f.logger, f.metrics)
}

func TestCollect_EveryPubkeyPresent(t *testing.T) {
	f := newFixture()
	f.querier.Events[""] = []nostr.Event{textNote("1", pubkey('a'), daysAgo(1))}

	result, stats, err := f.collector().Collect(context.Background(), []string{pubkey('a'), pubkey('b'), pubkey('a')}, 10, nil)
	require.NoError(t, err)

	assert.Len(t, result, 2)
	assert.Len(t, result[pubkey('a')], 1)
	assert.NotNil(t, result[pubkey('b')])
	assert.Empty(t, result[pubkey('b')])

	require.NotEmpty(t, stats)
	assert.Equal(t, zombie.PassBroad, stats[0].Name)
	assert.Equal(t, 2, stats[0].Queried)
	assert.Equal(t, 1, stats[0].Resolved)
}

func TestCollect_RejectsBadInput(t *testing.T) {
	f := newFixture()
	c := f.collector()

	_, _, err := c.Collect(context.Background(), nil, 10, nil)
	assert.ErrorIs(t, err, zombie.ErrNoPubkeys)

	_, _, err = c.Collect(context.Background(), []string{"npub1abc"}, 10, nil)
	assert.ErrorIs(t, err, nostr.ErrInvalidPubkey)

	assert.Equal(t, 0, f.querier.QueryCount())
}

func TestCollect_BroadFilter(t *testing.T) {
	f := newFixture()
	_, _, err := f.collector().Run(context.Background(),
		[]zombie.Pass{zombie.BroadPass(testSettings(), 10)},
		[]string{pubkey('a'), pubkey('b'), pubkey('c')}, 10, nil)
	require.NoError(t, err)

	require.Len(t, f.querier.Filters, 2, "three pubkeys in batches of two")
	first := f.querier.Filters[0]
	assert.Equal(t, []string{pubkey('a'), pubkey('b')}, first.Authors)
	assert.Equal(t, 20, first.Limit)
	assert.Equal(t, zombie.ActivityKinds, first.Kinds)
	require.NotNil(t, first.Since)
	assert.Equal(t, daysAgo(120), *first.Since)
	assert.Equal(t, 10, f.querier.Filters[1].Limit)
	assert.Nil(t, f.querier.Relays[0], "broad pass uses the default relays")
}

func TestCollect_SmartRetryFindsEventsOnWriteRelays(t *testing.T) {
	f := newFixture()
	p := pubkey('f')
	f.lists[p] = &nostr.RelayList{Write: []string{"wss://r1.example"}}
	f.querier.Events["wss://r1.example"] = []nostr.Event{
		textNote("e1", p, daysAgo(2)),
		textNote("e2", p, daysAgo(5)),
	}

	result, stats, err := f.collector().Collect(context.Background(), []string{p, pubkey('9')}, 10, nil)
	require.NoError(t, err)

	require.Len(t, result[p], 2)
	assert.Equal(t, "e1", result[p][0].ID)

	require.GreaterOrEqual(t, len(stats), 2)
	assert.Equal(t, 0, stats[0].Resolved)
	assert.Equal(t, zombie.PassPreferredRelays, stats[1].Name)
	assert.Equal(t, 1, stats[1].Queried, "accounts without a relay list are skipped")
	assert.Equal(t, 1, stats[1].Resolved)

	c := newClassifier().Classify(result, nil, zombie.DefaultThresholds(), nil)
	r, _ := c.Find(p)
	assert.Equal(t, zombie.CategoryActive, r.Category)
	q, _ := c.Find(pubkey('9'))
	assert.Equal(t, zombie.CategoryAncient, q.Category)
}

func TestCollect_ExhaustiveFindsOldEvents(t *testing.T) {
	f := newFixture()
	p := pubkey('f')
	f.querier.Events[""] = []nostr.Event{
		{ID: "badge", PubKey: p, Kind: nostr.KindBadgeAward, CreatedAt: daysAgo(700)},
	}

	result, stats, err := f.collector().Collect(context.Background(), []string{p}, 10, nil)
	require.NoError(t, err)

	require.Len(t, result[p], 1)
	var names []string
	for _, s := range stats {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{zombie.PassBroad, zombie.PassPreferredRelays, zombie.PassExhaustive}, names)
	assert.Equal(t, 1, stats[2].Resolved)
}

func TestCollect_NotesPassUsesSmallBatches(t *testing.T) {
	f := newFixture()
	pks := []string{pubkey('a'), pubkey('b'), pubkey('c'), pubkey('d')}

	_, stats, err := f.collector().Collect(context.Background(), pks, 10, nil)
	require.NoError(t, err)

	require.Len(t, stats, 4)
	notes := stats[3]
	assert.Equal(t, zombie.PassExhaustiveNotes, notes.Name)
	assert.Equal(t, 4, notes.Queried)
	assert.Equal(t, 2, notes.Batches)

	last := f.querier.Filters[len(f.querier.Filters)-1]
	assert.Equal(t, []int{nostr.KindTextNote}, last.Kinds)
	assert.Equal(t, 1000, last.Limit)
	assert.Nil(t, last.Since)
}

func TestCollect_TimeoutYieldsNoEvents(t *testing.T) {
	f := newFixture()
	slow := pubkey('5')
	f.querier.Block = map[string]bool{slow: true}

	start := time.Now()
	result, stats, err := f.collector().Collect(context.Background(), []string{slow}, 10, nil)
	require.NoError(t, err)

	assert.Empty(t, result[slow])
	assert.Less(t, time.Since(start), 2*time.Second)
	timeouts := 0
	for _, s := range stats {
		timeouts += s.Timeouts
	}
	assert.Equal(t, 3, timeouts, "broad, exhaustive and notes passes time out; no relay list for preferred")
	assert.Equal(t, 1, f.metrics.RelayQueries[zombie.PassBroad+":"+providers.OutcomeTimeout])
	assert.Positive(t, f.logger.Count("warn"))
}

func TestCollect_RelayErrorYieldsNoEvents(t *testing.T) {
	f := newFixture()
	f.querier.Err = errors.New("all relays failed")

	result, stats, err := f.collector().Collect(context.Background(), []string{pubkey('a')}, 10, nil)
	require.NoError(t, err)

	assert.Empty(t, result[pubkey('a')])
	assert.Equal(t, 1, stats[0].Failures)
	assert.Equal(t, 1, f.metrics.RelayQueries[zombie.PassBroad+":"+providers.OutcomeError])
}

func TestCollect_CancelledBetweenBatches(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := zombie.ProgressFunc(func(p zombie.Progress) {
		if p.Stage == zombie.PassBroad {
			cancel()
		}
	})
	pks := []string{pubkey('a'), pubkey('b'), pubkey('c'), pubkey('d'), pubkey('e')}

	result, _, err := f.collector().Collect(ctx, pks, 10, listener)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.querier.QueryCount(), "the running batch finishes, the next one never starts")
	assert.Len(t, result, len(pks))
}

func TestCollect_ProgressAtBatchBoundaries(t *testing.T) {
	f := newFixture()
	f.querier.Events[""] = []nostr.Event{textNote("1", pubkey('a'), daysAgo(1))}
	var updates []zombie.Progress
	listener := zombie.ProgressFunc(func(p zombie.Progress) { updates = append(updates, p) })

	_, _, err := f.collector().Run(context.Background(),
		[]zombie.Pass{zombie.BroadPass(testSettings(), 10)},
		[]string{pubkey('a'), pubkey('b'), pubkey('c')}, 10, listener)
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, zombie.Progress{Stage: zombie.PassBroad, Processed: 2, Total: 3, ZombiesFound: 2}, updates[0])
	assert.Equal(t, zombie.Progress{Stage: zombie.PassBroad, Processed: 3, Total: 3, ZombiesFound: 2}, updates[1])
}

func TestCollect_ProgressCountsEmptyAccountsAcrossPasses(t *testing.T) {
	f := newFixture()
	f.querier.Events[""] = []nostr.Event{
		textNote("recent", pubkey('a'), daysAgo(1)),
		textNote("old", pubkey('b'), daysAgo(400)),
	}
	var updates []zombie.Progress
	listener := zombie.ProgressFunc(func(p zombie.Progress) { updates = append(updates, p) })

	passes := append([]zombie.Pass{zombie.BroadPass(testSettings(), 10)},
		zombie.ExhaustivePasses(testSettings(), nil, nil)...)
	_, _, err := f.collector().Run(context.Background(), passes,
		[]string{pubkey('a'), pubkey('b'), pubkey('c')}, 10, listener)
	require.NoError(t, err)

	last := make(map[string]int)
	previous := 3
	for _, u := range updates {
		assert.LessOrEqual(t, u.ZombiesFound, previous, "stage %s", u.Stage)
		previous = u.ZombiesFound
		last[u.Stage] = u.ZombiesFound
	}
	assert.Equal(t, 2, last[zombie.PassBroad])
	assert.Equal(t, 1, last[zombie.PassExhaustive])
	assert.Equal(t, 1, last[zombie.PassExhaustiveNotes])
}

func TestRetryWithPreferredRelays_IsMonotonic(t *testing.T) {
	f := newFixture()
	p := pubkey('f')
	f.lists[p] = &nostr.RelayList{Write: []string{"wss://r1.example"}}
	f.querier.Events["wss://r1.example"] = []nostr.Event{textNote("e1", p, daysAgo(2))}
	c := f.collector()

	found := zombie.ActivityMap{pubkey('a'): {note("keep", daysAgo(1))}, p: {}}
	retry, err := c.RetryWithPreferredRelays(context.Background(), found.Empty())
	require.NoError(t, err)
	assert.Len(t, retry[p], 1)

	found.Merge(retry, 10)
	assert.Len(t, found[pubkey('a')], 1)
	assert.Len(t, found[p], 1)
	assert.Empty(t, found.Empty())
}

func TestRetryWithPreferredRelays_WithoutListsQueriesNothing(t *testing.T) {
	f := newFixture()

	result, err := f.collector().RetryWithPreferredRelays(context.Background(), []string{pubkey('a')})
	require.NoError(t, err)
	assert.Empty(t, result[pubkey('a')])
	assert.Equal(t, 0, f.querier.QueryCount())
}

func TestRetryExhaustive_QueriesOneAccountAtATime(t *testing.T) {
	f := newFixture()
	f.querier.Events[""] = []nostr.Event{textNote("n", pubkey('b'), daysAgo(1000))}

	result, err := f.collector().RetryExhaustive(context.Background(), []string{pubkey('a'), pubkey('b')})
	require.NoError(t, err)

	assert.Len(t, result[pubkey('b')], 1)
	assert.Empty(t, result[pubkey('a')])
	for _, filter := range f.querier.Filters[:2] {
		assert.Len(t, filter.Authors, 1)
		assert.Equal(t, zombie.ExhaustiveKinds, filter.Kinds)
		assert.Equal(t, 500, filter.Limit)
	}
}

func TestCollectActivity_SinglePass(t *testing.T) {
	f := newFixture()

	result, err := f.collector().CollectActivity(context.Background(), []string{pubkey('a')}, 0)
	require.NoError(t, err)
	assert.Contains(t, result, pubkey('a'))
	assert.Equal(t, 1, f.querier.QueryCount())
}

func TestSettingsFromConfig(t *testing.T) {
	s := zombie.SettingsFromConfig(&structures.ScanConfig{BatchSize: 5, RetryTimeout: time.Second})

	assert.Equal(t, 5, s.BatchSize)
	assert.Equal(t, time.Second, s.RetryTimeout)
	assert.Equal(t, zombie.DefaultSettings().BatchTimeout, s.BatchTimeout)
	assert.Equal(t, 120, s.WindowDays)
}

func TestNewConfiguredCollector(t *testing.T) {
	conf := &structures.Config{
		Relays: structures.RelayConfig{Default: []string{"wss://d.example"}},
		Scan:   structures.ScanConfig{BatchSize: 7},
	}
	c := zombie.NewConfiguredCollector(conf, &testutil.MockQuerier{}, nil, zombie.FixedClock{At: now}, &testutil.MockLogger{}, &testutil.MockMetrics{})

	assert.Equal(t, 7, c.Settings().BatchSize)
	passes := c.Passes(10)
	require.Len(t, passes, 4)
	relays, ok := passes[2].Relays(pubkey('a'))
	assert.True(t, ok)
	assert.Equal(t, []string{"wss://d.example"}, relays)
}
