package archive

import (
	"context"
	"errors"
	"pvz/internal/archive/interfaces"
	"pvz/internal/providers"
	"pvz/internal/services"
	"pvz/internal/structures"
	"sync"

	"github.com/roylee0704/gron"
)

type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	service     services.ScanServiceInterface
	fileManager *FileManager
	cron        *gron.Cron
	opsMu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Scheduler) Init() {
	s.cron = gron.New()

	s.cron.AddFunc(gron.Every(s.config.Persistence.SaveInterval), func() {
		s.opsMu.Lock()
		defer s.opsMu.Unlock()

		err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
		if err != nil {
			s.logger.Errorf(providers.TypeApp, "Error while persisting reports: %s", err)
			return
		}
		s.logger.Debugf(providers.TypeApp, "Persisted reports to file %s", s.config.Persistence.FilePath)
	})

	if s.config.Scheduler.RescanInterval > 0 && len(s.config.Scan.Watch) > 0 {
		s.cron.AddFunc(gron.Every(s.config.Scheduler.RescanInterval), s.Rescan)
	}

	s.cron.Start()
}

// Rescan scans the follow list of every watched owner in turn.
func (s *Scheduler) Rescan() {
	for _, owner := range s.config.Scan.Watch {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Infof(providers.TypeScan, "Scheduled rescan of %s", owner)
		_, err := s.service.Scan(s.ctx, services.Request{Owner: owner}, nil)
		switch {
		case errors.Is(err, services.ErrScanInProgress):
			s.logger.Warnf(providers.TypeScan, "Skipping scheduled rescan of %s: scan in progress", owner)
		case err != nil:
			s.logger.Errorf(providers.TypeScan, "Scheduled rescan of %s failed: %s", owner, err)
		}
	}
}

func (s *Scheduler) Stop() {
	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	return s.fileManager.LoadFromFile(s.config.Persistence.FilePath)
}

func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	s.logger.Infof(providers.TypeApp, "Persisting reports to file...")
	err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting reports: %s", err)
		return err
	}
	return nil
}

// Close releases the archive compressor. Call it after the final Persist.
func (s *Scheduler) Close() {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	s.fileManager.Close()
}

func NewScheduler(config *structures.Config, logger providers.Logger, service services.ScanServiceInterface, fileManager *FileManager) interfaces.SchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:      config,
		logger:      logger,
		service:     service,
		fileManager: fileManager,
		ctx:         ctx,
		cancel:      cancel,
	}
}
