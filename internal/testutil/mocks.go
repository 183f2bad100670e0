package testutil

import (
	"context"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/services"
	"pvz/internal/zombie"
	"sync"
	"time"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

// MockScanService implements services.ScanServiceInterface.
type MockScanService struct {
	mu         sync.Mutex
	ScanFn     func(ctx context.Context, req services.Request, listener zombie.ProgressListener) (*services.Report, error)
	ScanCalls  []services.Request
	Reports    map[string]*services.Report
	PutCalls   []map[string]*services.Report
	IsScanning bool
}

func (m *MockScanService) Scan(ctx context.Context, req services.Request, listener zombie.ProgressListener) (*services.Report, error) {
	m.mu.Lock()
	m.ScanCalls = append(m.ScanCalls, req)
	fn := m.ScanFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req, listener)
	}
	return &services.Report{Owner: req.Owner, Classification: zombie.NewClassification()}, nil
}

func (m *MockScanService) Scanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IsScanning
}

func (m *MockScanService) GetReport(owner string) (*services.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Reports[owner]; ok {
		return r, nil
	}
	return nil, services.ErrReportNotFound
}

func (m *MockScanService) GetQueue(owner string, batchSize int) ([][]zombie.Result, error) {
	r, err := m.GetReport(owner)
	if err != nil {
		return nil, err
	}
	return zombie.BuildQueue(r.Classification, batchSize), nil
}

func (m *MockScanService) GetOwners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make([]string, 0, len(m.Reports))
	for o := range m.Reports {
		owners = append(owners, o)
	}
	return owners
}

func (m *MockScanService) PutReports(reports map[string]*services.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, reports)
	if m.Reports == nil {
		m.Reports = make(map[string]*services.Report)
	}
	for o, r := range reports {
		m.Reports[o] = r
	}
}

func (m *MockScanService) GetSnapshot() *services.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports := make(map[string]*services.Report, len(m.Reports))
	for o, r := range m.Reports {
		reports[o] = r
	}
	return &services.Snapshot{Version: services.SnapshotVersion, Reports: reports}
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
	Closes       int
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() { m.Closes++ }

// MockMetrics implements providers.MetricsProviderInterface and counts relay
// query outcomes.
type MockMetrics struct {
	mu                sync.Mutex
	RelayQueries      map[string]int // key: "pass:outcome"
	PersistenceCalls  int
	ScanDurationCalls int
	Zombies           map[string]int
	Reports           int
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits()                                    {}
func (m *MockMetrics) IncCacheMisses()                                  {}

func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistenceCalls++
}

func (m *MockMetrics) IncRelayQueries(pass, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RelayQueries == nil {
		m.RelayQueries = make(map[string]int)
	}
	m.RelayQueries[pass+":"+outcome]++
}

func (m *MockMetrics) ObserveScanDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanDurationCalls++
}

func (m *MockMetrics) SetZombiesTotal(category string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Zombies == nil {
		m.Zombies = make(map[string]int)
	}
	m.Zombies[category] = count
}

func (m *MockMetrics) SetReportsTotal(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = count
}

// MockDirectory implements services.Directory with canned data.
type MockDirectory struct {
	mu            sync.Mutex
	FollowsByUser map[string][]string
	FollowsErr    error
	ProfileData   map[string][]nostr.Event
	RelayLists    map[string]*nostr.RelayList
	FollowCalls   int
	PrefetchCalls int
	ProfileCalls  int
}

func (m *MockDirectory) Follows(_ context.Context, owner string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowCalls++
	if m.FollowsErr != nil {
		return nil, m.FollowsErr
	}
	return m.FollowsByUser[owner], nil
}

func (m *MockDirectory) PrefetchRelayLists(_ context.Context, pubkeys []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrefetchCalls++
	n := 0
	for _, pk := range pubkeys {
		if _, ok := m.RelayLists[pk]; ok {
			n++
		}
	}
	return n
}

func (m *MockDirectory) RelayList(pubkey string) (*nostr.RelayList, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rl, ok := m.RelayLists[pubkey]
	return rl, ok
}

func (m *MockDirectory) Profiles(_ context.Context, pubkeys []string) map[string][]nostr.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProfileCalls++
	out := make(map[string][]nostr.Event)
	for _, pk := range pubkeys {
		if evs, ok := m.ProfileData[pk]; ok {
			out[pk] = evs
		}
	}
	return out
}

// MockQuerier implements nostr.Querier by filtering a fixed event set per
// relay url. The "" key holds the default relays' events.
type MockQuerier struct {
	mu      sync.Mutex
	Events  map[string][]nostr.Event
	Block   map[string]bool // authors whose queries hang until ctx ends
	Err     error
	Filters []nostr.Filter
	Relays  [][]string
}

func (m *MockQuerier) QueryEvents(ctx context.Context, relays []string, filter nostr.Filter) ([]nostr.Event, error) {
	m.mu.Lock()
	m.Filters = append(m.Filters, filter)
	m.Relays = append(m.Relays, relays)
	block := false
	for _, a := range filter.Authors {
		if m.Block[a] {
			block = true
		}
	}
	err := m.Err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	keys := relays
	if len(keys) == 0 {
		keys = []string{""}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []nostr.Event
	for _, k := range keys {
		for _, ev := range m.Events[k] {
			if _, dup := seen[ev.ID]; dup || !filter.Matches(ev) {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	return out, nil
}

// QueryCount returns the number of queries issued so far.
func (m *MockQuerier) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Filters)
}
