// internal/source/file.go
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Column aliases of a dataset row. Scraped tables use their lowercase headers.
var (
	symbolKeys      = []string{"asset", "symbol", "token"}
	rateKeys        = []string{"supply apy", "supply_apy", "apy", "supply rate"}
	tvlKeys         = []string{"total supplied", "total_supplied", "tvl", "supplied"}
	utilizationKeys = []string{"utilization rate", "utilization", "utilization_rate"}
	poolKeys        = []string{"contract_address", "pool", "pool_address"}
	tokenKeys       = []string{"token_address", "underlying"}
	marketKeys      = []string{"protocol", "market", "chain", "network"}
	encodingKeys    = []string{"rate_encoding", "encoding"}
)

// FileSource reads one protocol's rows from a JSON, CSV or YAML dataset.
type FileSource struct {
	path     string
	protocol domain.Protocol
	logger   *zap.Logger
}

// NewFileSource creates a file-backed source. The format follows the file extension.
func NewFileSource(path string, protocol domain.Protocol, logger *zap.Logger) *FileSource {
	return &FileSource{
		path:     path,
		protocol: protocol,
		logger:   logger.Named("file_source"),
	}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + filepath.Base(s.path)
}

// Fetch implements Source. Rows whose market tag does not resolve to chain are skipped.
func (s *FileSource) Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	rows, err := DecodeRows(bytes.NewReader(data), filepath.Ext(s.path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}

	var records []domain.RawRecord
	for i, row := range rows {
		rowChain, ok := rowMarket(row)
		if !ok {
			s.logger.Debug("Skipping row with unknown market",
				zap.Int("row", i),
				zap.String("market", lookup(row, marketKeys)))
			continue
		}
		if rowChain != chain {
			continue
		}
		records = append(records, s.recordFromRow(row, chain))
	}
	return records, nil
}

func (s *FileSource) recordFromRow(row map[string]string, chain domain.Chain) domain.RawRecord {
	encoding := domain.RatePercent
	if strings.EqualFold(lookup(row, encodingKeys), string(domain.RateRay)) {
		encoding = domain.RateRay
	}

	pool := lookup(row, poolKeys)
	if pool == "" {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if pool = ExtractContractAddress(row[k]); pool != "" {
				break
			}
		}
	} else {
		pool = ExtractContractAddress(pool)
	}

	return domain.RawRecord{
		Protocol:     s.protocol,
		Chain:        chain,
		Symbol:       lookup(row, symbolKeys),
		Rate:         lookup(row, rateKeys),
		Encoding:     encoding,
		TVL:          lookup(row, tvlKeys),
		Utilization:  lookup(row, utilizationKeys),
		PoolAddress:  pool,
		TokenAddress: ExtractContractAddress(lookup(row, tokenKeys)),
		Source:       domain.SourceLive,
	}
}

func rowMarket(row map[string]string) (domain.Chain, bool) {
	for _, k := range marketKeys {
		if chain, ok := ChainFromMarket(row[k]); ok {
			return chain, true
		}
	}
	return "", false
}

// ChainFromMarket maps a market tag such as "mainnet" or "polygon-v3" to a chain.
func ChainFromMarket(tag string) (domain.Chain, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, suffix := range []string{"-v3", "-v2", "_v3", "_v2"} {
		tag = strings.TrimSuffix(tag, suffix)
	}
	if tag == "" {
		return "", false
	}
	chain, err := domain.ParseChain(tag)
	if err != nil {
		return "", false
	}
	return chain, true
}

// DecodeRows reads dataset rows keyed by lowercase column name.
func DecodeRows(r io.Reader, ext string) ([]map[string]string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		var raw []map[string]interface{}
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		return stringRows(raw), nil
	case "yaml", "yml":
		var raw []map[string]interface{}
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		return stringRows(raw), nil
	case "csv":
		return decodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", ext)
	}
}

func decodeCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(all)-1)
	for _, line := range all[1:] {
		row := make(map[string]string, len(header))
		for i, v := range line {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringRows(raw []map[string]interface{}) []map[string]string {
	rows := make([]map[string]string, 0, len(raw))
	for _, r := range raw {
		row := make(map[string]string, len(r))
		for k, v := range r {
			if v == nil {
				continue
			}
			row[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows
}

func lookup(row map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
