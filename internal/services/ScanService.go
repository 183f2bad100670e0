package services

import (
	"context"
	"errors"
	"fmt"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/structures"
	"pvz/internal/zombie"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// AdhocOwner is the report key used for scans of an explicit pubkey list.
const AdhocOwner = "adhoc"

var (
	ErrNoFollows      = errors.New("no follows to scan")
	ErrScanInProgress = errors.New("a scan is already running")
	ErrReportNotFound = errors.New("report not found")
)

// Request selects the accounts to scan: the follow list of Owner, or the
// explicit Pubkeys when Owner is empty.
type Request struct {
	Owner   string   `json:"owner"`
	Pubkeys []string `json:"pubkeys"`
}

type Report struct {
	ID             string                 `json:"id"`
	Owner          string                 `json:"owner"`
	StartedAt      time.Time              `json:"startedAt"`
	FinishedAt     time.Time              `json:"finishedAt"`
	Thresholds     zombie.Thresholds      `json:"thresholds"`
	Total          int                    `json:"total"`
	RelayLists     int                    `json:"relayLists"`
	Passes         []zombie.PassStats     `json:"passes"`
	Classification *zombie.Classification `json:"classification"`
}

// Snapshot is the persisted form of all reports.
type Snapshot struct {
	Version int                `json:"version"`
	Reports map[string]*Report `json:"reports"`
}

const SnapshotVersion = 1

// Directory resolves follow lists, relay lists and profiles.
type Directory interface {
	Follows(ctx context.Context, owner string) ([]string, error)
	PrefetchRelayLists(ctx context.Context, pubkeys []string) int
	Profiles(ctx context.Context, pubkeys []string) map[string][]nostr.Event
}

type ActivityCollector interface {
	Collect(ctx context.Context, pubkeys []string, limit int, listener zombie.ProgressListener) (zombie.ActivityMap, []zombie.PassStats, error)
}

// ThresholdSource supplies the day thresholds at classification time.
type ThresholdSource interface {
	Thresholds() zombie.Thresholds
}

type ConfigThresholds struct {
	conf *structures.Config
}

func NewConfigThresholds(conf *structures.Config) ThresholdSource {
	return &ConfigThresholds{conf: conf}
}

func (c *ConfigThresholds) Thresholds() zombie.Thresholds {
	t := c.conf.Thresholds
	return zombie.Thresholds{Fresh: t.Fresh, Rotting: t.Rotting, Ancient: t.Ancient}
}

type ScanServiceInterface interface {
	Scan(ctx context.Context, req Request, listener zombie.ProgressListener) (*Report, error)
	Scanning() bool
	GetReport(owner string) (*Report, error)
	GetQueue(owner string, batchSize int) ([][]zombie.Result, error)
	GetOwners() []string
	PutReports(reports map[string]*Report)
	GetSnapshot() *Snapshot
}

type ScanService struct {
	directory  Directory
	collector  ActivityCollector
	classifier *zombie.Classifier
	thresholds ThresholdSource
	clock      zombie.Clock
	logger     providers.Logger
	metrics    providers.MetricsProviderInterface
	eventLimit int

	scanning atomic.Bool

	mu      sync.RWMutex
	reports map[string]*Report
}

func NewScanService(conf *structures.Config, directory Directory, collector ActivityCollector, classifier *zombie.Classifier, thresholds ThresholdSource, clock zombie.Clock, logger providers.Logger, metrics providers.MetricsProviderInterface) ScanServiceInterface {
	return &ScanService{
		directory:  directory,
		collector:  collector,
		classifier: classifier,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		eventLimit: conf.Scan.EventLimit,
		reports:    make(map[string]*Report),
	}
}

// Scan runs one complete scan and stores the report as the latest for its
// owner. Only one scan runs at a time.
func (s *ScanService) Scan(ctx context.Context, req Request, listener zombie.ProgressListener) (*Report, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	started := s.clock.Now()
	owner, pubkeys, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Infof(providers.TypeScan, "scan %s: %d accounts", owner, len(pubkeys))

	relayLists := s.directory.PrefetchRelayLists(ctx, pubkeys)
	s.logger.Debugf(providers.TypeScan, "scan %s: %d relay lists known", owner, relayLists)

	activity, passes, err := s.collector.Collect(ctx, pubkeys, s.eventLimit, listener)
	if err != nil {
		return nil, fmt.Errorf("collect activity: %w", err)
	}

	profiles := s.directory.Profiles(ctx, pubkeys)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}

	thresholds := s.thresholds.Thresholds()
	classification := s.classifier.Classify(activity, profiles, thresholds, listener)

	report := &Report{
		ID:             uuid.NewString(),
		Owner:          owner,
		StartedAt:      started,
		FinishedAt:     s.clock.Now(),
		Thresholds:     thresholds,
		Total:          len(activity),
		RelayLists:     relayLists,
		Passes:         passes,
		Classification: classification,
	}

	s.mu.Lock()
	s.reports[owner] = report
	count := len(s.reports)
	s.mu.Unlock()

	s.metrics.ObserveScanDuration(report.FinishedAt.Sub(report.StartedAt))
	s.metrics.SetReportsTotal(count)
	for cat, n := range classification.Counts() {
		s.metrics.SetZombiesTotal(string(cat), n)
	}
	s.logger.Infof(providers.TypeScan, "scan %s finished: %d accounts, %d zombies", owner, report.Total, classification.Zombies())
	return report, nil
}

// resolve turns a request into the report owner and the accounts to scan.
// Empty input is rejected before any relay query.
func (s *ScanService) resolve(ctx context.Context, req Request) (string, []string, error) {
	if req.Owner == "" {
		if len(req.Pubkeys) == 0 {
			return "", nil, ErrNoFollows
		}
		for _, pk := range req.Pubkeys {
			if !nostr.ValidPubkey(pk) {
				return "", nil, fmt.Errorf("%w: %q", nostr.ErrInvalidPubkey, pk)
			}
		}
		return AdhocOwner, req.Pubkeys, nil
	}

	if !nostr.ValidPubkey(req.Owner) {
		return "", nil, fmt.Errorf("%w: %q", nostr.ErrInvalidPubkey, req.Owner)
	}
	follows, err := s.directory.Follows(ctx, req.Owner)
	if err != nil {
		return "", nil, err
	}
	if len(follows) == 0 {
		return "", nil, ErrNoFollows
	}
	return req.Owner, follows, nil
}

func (s *ScanService) Scanning() bool {
	return s.scanning.Load()
}

func (s *ScanService) GetReport(owner string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[owner]
	if !ok {
		return nil, ErrReportNotFound
	}
	return r, nil
}

func (s *ScanService) GetQueue(owner string, batchSize int) ([][]zombie.Result, error) {
	r, err := s.GetReport(owner)
	if err != nil {
		return nil, err
	}
	return zombie.BuildQueue(r.Classification, batchSize), nil
}

func (s *ScanService) GetOwners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make([]string, 0, len(s.reports))
	for owner := range s.reports {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// PutReports merges restored reports, keeping the newer one per owner.
func (s *ScanService) PutReports(reports map[string]*Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, r := range reports {
		if r == nil || r.Classification == nil {
			continue
		}
		if cur, ok := s.reports[owner]; ok && cur.FinishedAt.After(r.FinishedAt) {
			continue
		}
		s.reports[owner] = r
	}
	s.metrics.SetReportsTotal(len(s.reports))
}

func (s *ScanService) GetSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reports := make(map[string]*Report, len(s.reports))
	for owner, r := range s.reports {
		reports[owner] = r
	}
	return &Snapshot{Version: SnapshotVersion, Reports: reports}
}
