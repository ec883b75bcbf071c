package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/normalize"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format    ExportFormat
	OutputDir string
	Filter    aggregator.Filter
	// OnlyLive drops fallback rows.
	OnlyLive bool
}

// CSVHeaders matches the column order of opportunityRow.
var CSVHeaders = []string{
	"protocol", "chain", "asset", "apy", "projected_apy", "tvl_usd",
	"risk_score", "pool_address", "token_address", "source", "fetched_at",
}

// SnapshotExporter writes aggregator snapshots to disk.
type SnapshotExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotExporter creates a new snapshot exporter
func NewSnapshotExporter(logger *zap.Logger) *SnapshotExporter {
	return &SnapshotExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportSnapshot writes the filtered opportunities of snap and returns the file path.
// An empty selection still produces a file with headers only.
func (se *SnapshotExporter) ExportSnapshot(snap aggregator.Snapshot, options ExportOptions) (string, error) {
	filtered := filterOpportunities(snap.Opportunities, options)

	filename := se.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = se.exportToJSON(snap, filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	se.logger.Info("Snapshot exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterOpportunities(opps []domain.YieldOpportunity, options ExportOptions) []domain.YieldOpportunity {
	var filtered []domain.YieldOpportunity
	for _, o := range opps {
		if options.Filter.Asset != "" && o.Asset != options.Filter.Asset {
			continue
		}
		if options.Filter.Chain != "" && o.Chain != options.Filter.Chain {
			continue
		}
		if options.Filter.Protocol != "" && o.Protocol != options.Filter.Protocol {
			continue
		}
		if options.OnlyLive && o.Source != domain.SourceLive {
			continue
		}
		filtered = append(filtered, o)
	}
	return filtered
}

func (se *SnapshotExporter) generateFilename(options ExportOptions) string {
	timestamp := se.now().UTC().Format("20060102_150405")

	parts := []string{"yields"}
	for _, tag := range []string{string(options.Filter.Protocol), string(options.Filter.Chain), string(options.Filter.Asset)} {
		if tag != "" {
			parts = append(parts, strings.ToLower(tag))
		}
	}
	if len(parts) == 1 {
		parts = append(parts, "all")
	}

	return fmt.Sprintf("%s_%s.%s", strings.Join(parts, "_"), timestamp, options.Format)
}

func opportunityRow(o domain.YieldOpportunity) []string {
	projected := ""
	if o.ProjectedAPY != nil {
		projected = strconv.FormatFloat(*o.ProjectedAPY, 'f', 4, 64)
	}
	return []string{
		string(o.Protocol),
		string(o.Chain),
		string(o.Asset),
		strconv.FormatFloat(o.CurrentAPY, 'f', 4, 64),
		projected,
		tvlUSD(o.TVL),
		strconv.FormatFloat(o.RiskScore, 'f', 2, 64),
		o.PoolAddress,
		o.TokenAddress,
		string(o.Source),
		o.FetchedAt.UTC().Format(time.RFC3339),
	}
}

func tvlUSD(cents *big.Int) string {
	if cents == nil {
		return "0.00"
	}
	return decimal.NewFromBigInt(cents, -2).StringFixed(2)
}

func exportToCSV(opps []domain.YieldOpportunity, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, o := range opps {
		if err := writer.Write(opportunityRow(o)); err != nil {
			return fmt.Errorf("failed to write opportunity: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportSummary contains summary statistics for an exported snapshot
type ExportSummary struct {
	TotalOpportunities int                      `json:"total_opportunities"`
	UniqueChains       int                      `json:"unique_chains"`
	BestAPY            float64                  `json:"best_apy"`
	TotalTVL           string                   `json:"total_tvl_usd"`
	FallbackCount      int                      `json:"fallback_count"`
	Failures           []aggregator.SlotFailure `json:"failures,omitempty"`
}

func summarize(snap aggregator.Snapshot, opps []domain.YieldOpportunity) ExportSummary {
	stats := aggregator.ComputeStats(opps)
	summary := ExportSummary{
		TotalOpportunities: stats.TotalOpportunities,
		UniqueChains:       stats.UniqueChains,
		BestAPY:            stats.BestAPY,
		TotalTVL:           normalize.FormatTVL(stats.TotalTVL),
		Failures:           snap.Failures,
	}
	for _, o := range opps {
		if o.Source == domain.SourceFallback {
			summary.FallbackCount++
		}
	}
	return summary
}

func (se *SnapshotExporter) exportToJSON(snap aggregator.Snapshot, opps []domain.YieldOpportunity, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if opps == nil {
		opps = []domain.YieldOpportunity{}
	}
	exportData := struct {
		ExportTime    time.Time                 `json:"export_time"`
		CollectedAt   time.Time                 `json:"collected_at"`
		Count         int                       `json:"count"`
		Opportunities []domain.YieldOpportunity `json:"opportunities"`
		Summary       ExportSummary             `json:"summary"`
	}{
		ExportTime:    se.now().UTC(),
		CollectedAt:   snap.CollectedAt,
		Count:         len(opps),
		Opportunities: opps,
		Summary:       summarize(snap, opps),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportAll writes one file per format into dir and returns the paths.
func (se *SnapshotExporter) ExportAll(snap aggregator.Snapshot, dir string, formats []ExportFormat) ([]string, error) {
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		path, err := se.ExportSnapshot(snap, ExportOptions{Format: f, OutputDir: dir})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
