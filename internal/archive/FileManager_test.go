package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"pvz/internal/archive"
	"pvz/internal/services"
	"pvz/internal/testutil"
	"pvz/internal/zombie"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(owner string, finished time.Time) *services.Report {
	c := zombie.NewClassification()
	last := finished.Add(-400 * 24 * time.Hour).Unix()
	c.Add(zombie.Result{Pubkey: strings.Repeat("a", 64), Category: zombie.CategoryAncient, LastActivity: &last, Confidence: 0.4, EventCount: 1})
	c.Add(zombie.Result{Pubkey: strings.Repeat("b", 64), Category: zombie.CategoryBurned, DeletionInfo: &zombie.DeletionInfo{MarkedDeletedAt: 1, DeletionAge: 2, ProfileUpdatesAfterDeletion: 3}})
	return &services.Report{
		ID:             "r-" + owner,
		Owner:          owner,
		StartedAt:      finished.Add(-time.Minute),
		FinishedAt:     finished,
		Thresholds:     zombie.DefaultThresholds(),
		Total:          2,
		Passes:         []zombie.PassStats{{Name: zombie.PassBroad, Queried: 2, Batches: 1}},
		Classification: c,
	}
}

func newFileManager(t *testing.T, service services.ScanServiceInterface) (*archive.FileManager, *testutil.MockLogger, *testutil.MockMetrics) {
	t.Helper()
	compressor, err := archive.NewZstdCompressor()
	require.NoError(t, err)
	logger := &testutil.MockLogger{}
	metrics := &testutil.MockMetrics{}
	fm := archive.NewFileManager(compressor, service, logger, metrics)
	t.Cleanup(fm.Close)
	return fm, logger, metrics
}

func TestFileManager_SaveAndLoadRoundtrip(t *testing.T) {
	finished := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	source := &testutil.MockScanService{Reports: map[string]*services.Report{
		"adhoc": sampleReport("adhoc", finished),
	}}
	fm, _, metrics := newFileManager(t, source)

	path := filepath.Join(t.TempDir(), "reports.dat")
	require.NoError(t, fm.SaveToFile(path))
	assert.Equal(t, 1, metrics.PersistenceCalls)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	target := &testutil.MockScanService{}
	loader, logger, _ := newFileManager(t, target)
	require.NoError(t, loader.LoadFromFile(path))

	require.Len(t, target.PutCalls, 1)
	restored := target.Reports["adhoc"]
	require.NotNil(t, restored)
	assert.Equal(t, "r-adhoc", restored.ID)
	assert.True(t, finished.Equal(restored.FinishedAt))
	assert.Equal(t, source.Reports["adhoc"].Classification, restored.Classification)
	assert.Equal(t, 1, logger.Count("info"))
}

func TestFileManager_LoadMissingFile(t *testing.T) {
	target := &testutil.MockScanService{}
	fm, _, _ := newFileManager(t, target)

	err := fm.LoadFromFile(filepath.Join(t.TempDir(), "missing.dat"))
	assert.NoError(t, err)
	assert.Empty(t, target.PutCalls)
}

func TestFileManager_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.dat")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	fm, _, _ := newFileManager(t, &testutil.MockScanService{})

	assert.Error(t, fm.LoadFromFile(path))
}

func TestFileManager_RejectsNewerVersion(t *testing.T) {
	compressor := &testutil.MockCompressor{}
	path := filepath.Join(t.TempDir(), "reports.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"reports":{}}`), 0644))

	target := &testutil.MockScanService{}
	fm := archive.NewFileManager(compressor, target, &testutil.MockLogger{}, &testutil.MockMetrics{})
	err := fm.LoadFromFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
	assert.Empty(t, target.PutCalls)
}

func TestFileManager_EmptySnapshotWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1}`), 0644))

	logger := &testutil.MockLogger{}
	target := &testutil.MockScanService{}
	fm := archive.NewFileManager(&testutil.MockCompressor{}, target, logger, &testutil.MockMetrics{})

	assert.NoError(t, fm.LoadFromFile(path))
	assert.Empty(t, target.PutCalls)
	assert.Equal(t, 1, logger.Count("warn"))
}

func TestFileManager_CompressErrorLeavesNoFile(t *testing.T) {
	compressor := &testutil.MockCompressor{CompressFn: func([]byte) ([]byte, error) {
		return nil, errors.New("compress failed")
	}}
	fm := archive.NewFileManager(compressor, &testutil.MockScanService{}, &testutil.MockLogger{}, &testutil.MockMetrics{})

	path := filepath.Join(t.TempDir(), "reports.dat")
	assert.Error(t, fm.SaveToFile(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileManager_SaveToMissingDirFails(t *testing.T) {
	fm, _, _ := newFileManager(t, &testutil.MockScanService{})
	assert.Error(t, fm.SaveToFile(filepath.Join(t.TempDir(), "nope", "reports.dat")))
}
