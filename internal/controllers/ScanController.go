package controllers

import (
	"context"
	"errors"
	"net/http"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/services"
	"pvz/internal/structures"
	"pvz/internal/zombie"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type ScanController struct {
	logger         providers.Logger
	service        services.ScanServiceInterface
	cache          providers.CacheProviderInterface
	queueBatchSize int

	mu        sync.Mutex
	cancel    context.CancelFunc
	progress  zombie.Progress
	lastOwner string
	lastError string
}

type scanStatus struct {
	Scanning  bool            `json:"scanning"`
	Owner     string          `json:"owner,omitempty"`
	Progress  zombie.Progress `json:"progress"`
	LastError string          `json:"lastError,omitempty"`
}

func NewScanController(conf *structures.Config, logger providers.Logger, service services.ScanServiceInterface, cache providers.CacheProviderInterface) *ScanController {
	queueBatchSize := conf.Scan.QueueBatchSize
	if queueBatchSize <= 0 {
		queueBatchSize = zombie.DefaultQueueBatchSize
	}
	return &ScanController{
		logger:         logger,
		service:        service,
		cache:          cache,
		queueBatchSize: queueBatchSize,
	}
}

func writeJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (sc *ScanController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := sc.cache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, data)
		return
	}

	result, err := compute()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sc.cache.Set(cacheKey, gson)
	writeJSON(w, http.StatusOK, gson)
}

// StartScan validates the request and runs the scan in the background.
// Progress and the outcome are polled through Status and GetReport.
func (sc *ScanController) StartScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req services.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Owner == "" && len(req.Pubkeys) == 0 {
		http.Error(w, services.ErrNoFollows.Error(), http.StatusUnprocessableEntity)
		return
	}
	if req.Owner != "" && !nostr.ValidPubkey(req.Owner) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	for _, pk := range req.Pubkeys {
		if !nostr.ValidPubkey(pk) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
	}

	sc.mu.Lock()
	if sc.cancel != nil || sc.service.Scanning() {
		sc.mu.Unlock()
		http.Error(w, services.ErrScanInProgress.Error(), http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sc.cancel = cancel
	sc.lastOwner = req.Owner
	if sc.lastOwner == "" {
		sc.lastOwner = services.AdhocOwner
	}
	sc.lastError = ""
	sc.progress = zombie.Progress{}
	owner := sc.lastOwner
	sc.mu.Unlock()

	go sc.run(ctx, req)

	gson, _ := json.Marshal(map[string]string{"owner": owner, "status": "started"})
	writeJSON(w, http.StatusAccepted, gson)
}

func (sc *ScanController) run(ctx context.Context, req services.Request) {
	listener := zombie.ProgressFunc(func(p zombie.Progress) {
		sc.mu.Lock()
		sc.progress = p
		sc.mu.Unlock()
	})

	_, err := sc.service.Scan(ctx, req, listener)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cancel = nil
	if err != nil {
		sc.lastError = err.Error()
		sc.logger.Errorf(providers.TypeScan, "scan of %s failed: %s", sc.lastOwner, err)
	}
}

// CancelScan asks the running scan to stop at its next batch boundary.
func (sc *ScanController) CancelScan(w http.ResponseWriter, _ *http.Request) {
	sc.mu.Lock()
	cancel := sc.cancel
	sc.mu.Unlock()
	if cancel == nil {
		http.Error(w, "no scan running", http.StatusConflict)
		return
	}
	cancel()
	w.WriteHeader(http.StatusAccepted)
}

func (sc *ScanController) Status(w http.ResponseWriter, _ *http.Request) {
	sc.mu.Lock()
	status := scanStatus{
		Scanning:  sc.cancel != nil,
		Owner:     sc.lastOwner,
		Progress:  sc.progress,
		LastError: sc.lastError,
	}
	sc.mu.Unlock()

	gson, err := json.Marshal(status)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, gson)
}

func getOwner(r *http.Request) string {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		return services.AdhocOwner
	}
	return owner
}

func (sc *ScanController) lookup(w http.ResponseWriter, owner string) (*services.Report, bool) {
	report, err := sc.service.GetReport(owner)
	if errors.Is(err, services.ErrReportNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

// GetReport serves the latest report for ?owner=. Reports are immutable, so
// the encoded body is cached under the report id.
func (sc *ScanController) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := sc.lookup(w, getOwner(r))
	if !ok {
		return
	}
	sc.serveFromCacheOrCompute(w, "report:"+report.ID, func() (any, error) {
		return report, nil
	})
}

func (sc *ScanController) GetQueue(w http.ResponseWriter, r *http.Request) {
	owner := getOwner(r)
	batchSize := sc.queueBatchSize
	if b := r.URL.Query().Get("batch"); b != "" {
		n, err := cast.ToIntE(b)
		if err != nil || n <= 0 {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		batchSize = n
	}

	report, ok := sc.lookup(w, owner)
	if !ok {
		return
	}
	sc.serveFromCacheOrCompute(w, "queue:"+report.ID+":"+strconv.Itoa(batchSize), func() (any, error) {
		return sc.service.GetQueue(owner, batchSize)
	})
}

func (sc *ScanController) GetOwners(w http.ResponseWriter, _ *http.Request) {
	gson, err := json.Marshal(sc.service.GetOwners())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, gson)
}
