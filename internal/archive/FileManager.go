package archive

import (
	"fmt"
	"os"
	"pvz/internal/archive/interfaces"
	"pvz/internal/providers"
	"pvz/internal/services"
	"time"

	json "github.com/goccy/go-json"
)

// FileManager persists scan reports as zstd compressed JSON.
type FileManager struct {
	service    services.ScanServiceInterface
	compressor interfaces.CompressorInterface
	logger     providers.Logger
	metrics    providers.MetricsProviderInterface
}

func NewFileManager(compressor interfaces.CompressorInterface, service services.ScanServiceInterface, logger providers.Logger, metrics providers.MetricsProviderInterface) *FileManager {
	return &FileManager{
		compressor: compressor,
		service:    service,
		logger:     logger,
		metrics:    metrics,
	}
}

// SaveToFile writes the snapshot to a temporary file and renames it over
// fileName, so a crash never leaves a truncated archive behind.
func (f *FileManager) SaveToFile(fileName string) error {
	start := time.Now()
	defer func() { f.metrics.ObservePersistenceDuration(time.Since(start)) }()

	jsonData, err := json.Marshal(f.service.GetSnapshot())
	if err != nil {
		return err
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, fileName)
}

func (f *FileManager) Close() {
	f.compressor.Close()
}

// LoadFromFile restores reports. A missing file is not an error.
func (f *FileManager) LoadFromFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	decompressedData, err := f.compressor.Decompress(data)
	if err != nil {
		return err
	}

	var snapshot services.Snapshot
	if err := json.Unmarshal(decompressedData, &snapshot); err != nil {
		return err
	}
	if snapshot.Version > services.SnapshotVersion {
		return fmt.Errorf("archive version %d is newer than supported version %d", snapshot.Version, services.SnapshotVersion)
	}
	if snapshot.Reports == nil {
		f.logger.Warnf(providers.TypeApp, "Archive %s holds no reports", fileName)
		return nil
	}

	f.service.PutReports(snapshot.Reports)
	f.logger.Infof(providers.TypeApp, "Restored %d reports from %s", len(snapshot.Reports), fileName)
	return nil
}
