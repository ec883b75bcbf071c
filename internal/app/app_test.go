package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/yieldscope/internal/config"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

func staticConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Aave.Source = config.SourceStatic
	cfg.Curve.Source = config.SourceStatic
	cfg.RefreshCron = ""
	cfg.Export.Dir = t.TempDir()
	cfg.Export.Formats = []string{"json", "csv"}
	return cfg
}

func TestNewWiresStaticStack(t *testing.T) {
	a, err := New(context.Background(), staticConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []domain.Protocol{domain.ProtocolAave, domain.ProtocolCurve}, a.Registry.Protocols())
	assert.NotNil(t, a.PositionStore())

	snap, err := a.Scheduler.RunNow(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Opportunities)
	assert.Empty(t, snap.Failures)

	files, err := filepath.Glob(filepath.Join(a.Config.Export.Dir, "yields_all_*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	best, ok := a.Aggregator.GetBestYieldForAsset(context.Background(), domain.AssetUSDC, "")
	require.True(t, ok)
	assert.Equal(t, domain.AssetUSDC, best.Asset)

	for _, path := range []string{"/health", "/api/v1/meta", "/api/v1/stats", "/api/v1/gas/1", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewUsesDataFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aave.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"asset,supply apy,total supplied,utilization rate,market\n"+
			"USDC,5.10%,$850.5M,77%,base-v3\n"), 0o644))

	cfg := staticConfig(t)
	cfg.Aave.Source = config.SourceFile
	cfg.Aave.DataFile = path
	cfg.Curve.Enabled = false

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	opps := a.Aggregator.GetYieldsForAsset(context.Background(), domain.AssetUSDC, domain.ChainBase)
	require.Len(t, opps, 1)
	assert.InDelta(t, 5.10, opps[0].CurrentAPY, 1e-9)
	assert.Equal(t, domain.SourceLive, opps[0].Source)
}

func TestNewRejectsBadExportFormat(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Export.Formats = []string{"parquet"}
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
