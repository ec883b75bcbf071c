// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

const maxBodyBytes = 1 << 20

// statusFor maps typed domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		chainErr  *domain.UnsupportedChainError
		assetErr  *domain.UnsupportedAssetError
		amountErr *domain.MalformedAmountError
		quoteErr  *domain.QuoteServiceError
		sourceErr *domain.DataSourceTimeoutError
	)
	switch {
	case errors.As(err, &chainErr), errors.As(err, &assetErr):
		return http.StatusBadRequest
	case errors.As(err, &amountErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &quoteErr), errors.As(err, &sourceErr):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err.Error(), status)
}

// parseFilter reads the optional asset, chain and protocol query parameters.
func parseFilter(r *http.Request) (aggregator.Filter, error) {
	var f aggregator.Filter
	q := r.URL.Query()
	if v := q.Get("asset"); v != "" {
		asset, err := domain.ParseAsset(v)
		if err != nil {
			return f, err
		}
		f.Asset = asset
	}
	if v := q.Get("chain"); v != "" {
		chain, err := domain.ParseChain(v)
		if err != nil {
			return f, err
		}
		f.Chain = chain
	}
	if v := q.Get("protocol"); v != "" {
		p, err := domain.ParseProtocol(v)
		if err != nil {
			return f, err
		}
		f.Protocol = p
	}
	return f, nil
}

var errAssetRequired = errors.New("asset query parameter is required")

func requireAsset(f aggregator.Filter) error {
	if f.Asset == "" {
		return errAssetRequired
	}
	return nil
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protocols": s.deps.Yields.SupportedProtocols(),
		"chains":    s.deps.Yields.SupportedChains(),
		"assets":    s.deps.Yields.SupportedAssets(),
	})
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opps := s.deps.Yields.ListOpportunities(r.Context(), f)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(opps),
		"opportunities": opps,
	})
}

func (s *Server) handleBestOpportunity(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err == nil {
		err = requireAsset(f)
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		best domain.YieldOpportunity
		ok   bool
	)
	switch rank := strings.ToLower(r.URL.Query().Get("rank")); rank {
	case "", "risk":
		best, ok = s.deps.Yields.GetBestYieldForAsset(r.Context(), f.Asset, f.Chain)
	case "raw":
		best, ok = s.deps.Yields.BestByRawAPY(r.Context(), f.Asset, f.Chain)
	default:
		writeError(w, "rank must be risk or raw", http.StatusBadRequest)
		return
	}
	if !ok {
		writeError(w, "no opportunity for "+string(f.Asset), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err == nil {
		err = requireAsset(f)
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Yields.CompareYieldsAcrossChains(r.Context(), f.Asset))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Yields.AggregateStats(r.Context()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleMoveCost(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := normalizeMoveRequest(&req); err != nil {
		s.fail(w, r, err)
		return
	}

	breakdown, err := s.deps.Estimator.EstimateMoveCost(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// normalizeMoveRequest canonicalizes chain, asset and protocol tags in place.
func normalizeMoveRequest(req *domain.MoveRequest) error {
	var err error
	if req.FromChain, err = domain.ParseChain(string(req.FromChain)); err != nil {
		return err
	}
	if req.ToChain, err = domain.ParseChain(string(req.ToChain)); err != nil {
		return err
	}
	if req.FromAsset, err = domain.ParseAsset(string(req.FromAsset)); err != nil {
		return err
	}
	if req.ToAsset, err = domain.ParseAsset(string(req.ToAsset)); err != nil {
		return err
	}
	req.FromProtocol = domain.Protocol(strings.ToLower(string(req.FromProtocol)))
	req.ToProtocol = domain.Protocol(strings.ToLower(string(req.ToProtocol)))
	return nil
}

// handleSwapQuote answers JSON null when the quote service fails.
func (s *Server) handleSwapQuote(w http.ResponseWriter, r *http.Request) {
	var req domain.SwapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	q, err := s.deps.Estimator.SwapQuote(r.Context(), req)
	if err != nil {
		s.logger.Warn("Swap quote unavailable", zap.Error(err))
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleGasPrices(w http.ResponseWriter, r *http.Request) {
	chain, err := domain.ParseChain(chi.URLParam(r, "chainID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.deps.Gas.GasPrices(r.Context(), chain)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) lookupPositions(w http.ResponseWriter, r *http.Request) ([]domain.Position, bool) {
	if s.deps.Positions == nil {
		writeError(w, "position store not configured", http.StatusNotImplemented)
		return nil, false
	}
	positions, err := s.deps.Positions.Lookup(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	return positions, true
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, ok := s.lookupPositions(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":     chi.URLParam(r, "owner"),
		"positions": positions,
	})
}

// PositionMove is the suggested move for one held position.
type PositionMove struct {
	Position domain.Position           `json:"position"`
	Target   *domain.YieldOpportunity  `json:"target,omitempty"`
	Cost     *domain.MoveCostBreakdown `json:"cost,omitempty"`
	APYGain  float64                   `json:"apyGain"`
	Error    string                    `json:"error,omitempty"`
}

// handlePositionMoves prices moving each position into the best risk-adjusted
// opportunity for its asset. Positions already there get no target.
func (s *Server) handlePositionMoves(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	positions, ok := s.lookupPositions(w, r)
	if !ok {
		return
	}

	moves := make([]PositionMove, 0, len(positions))
	for _, pos := range positions {
		if f.Asset != "" && pos.Asset != f.Asset {
			continue
		}
		move := PositionMove{Position: pos}

		best, found := s.deps.Yields.GetBestYieldForAsset(r.Context(), pos.Asset, "")
		if !found || (best.Protocol == pos.Protocol && best.Chain == pos.Chain) {
			moves = append(moves, move)
			continue
		}
		target := best
		move.Target = &target
		move.APYGain = best.CurrentAPY - pos.APY

		cost, err := s.deps.Estimator.EstimateForPosition(r.Context(), pos, best)
		if err != nil {
			move.Error = err.Error()
		} else {
			move.Cost = &cost
		}
		moves = append(moves, move)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner": chi.URLParam(r, "owner"),
		"moves": moves,
	})
}
