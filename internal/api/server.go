// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/position"
)

// DefaultRequestTimeout bounds one API request, upstream calls included.
const DefaultRequestTimeout = 30 * time.Second

// Yields is the read side of the aggregator.
type Yields interface {
	ListOpportunities(ctx context.Context, f aggregator.Filter) []domain.YieldOpportunity
	GetBestYieldForAsset(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool)
	BestByRawAPY(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool)
	CompareYieldsAcrossChains(ctx context.Context, asset domain.Asset) aggregator.Comparison
	AggregateStats(ctx context.Context) aggregator.Stats
	SupportedProtocols() []domain.Protocol
	SupportedChains() []domain.Chain
	SupportedAssets() []domain.Asset
}

// Estimator prices moves and swaps. *movecost.Estimator satisfies it.
type Estimator interface {
	EstimateMoveCost(ctx context.Context, req domain.MoveRequest) (domain.MoveCostBreakdown, error)
	EstimateForPosition(ctx context.Context, pos domain.Position, target domain.YieldOpportunity) (domain.MoveCostBreakdown, error)
	SwapQuote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error)
}

// GasPricer serves gas tiers. *gas.Service satisfies it.
type GasPricer interface {
	GasPrices(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error)
}

// HTTPObserver records request metrics. *metrics.Collector satisfies it.
type HTTPObserver interface {
	RecordHTTP(route, code string, duration time.Duration)
}

// Deps are the components behind the HTTP surface. Positions and Metrics may be nil.
type Deps struct {
	Yields    Yields
	Estimator Estimator
	Gas       GasPricer
	Positions position.Store
	Observer  HTTPObserver
	Metrics   http.Handler
}

// Server exposes the query and command operations over HTTP.
type Server struct {
	deps   Deps
	logger *zap.Logger
}

// NewServer creates the API server.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	return &Server{deps: deps, logger: logger.Named("api")}
}

// Router builds the chi router with middleware and every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(DefaultRequestTimeout))
	if s.deps.Observer != nil {
		r.Use(metricsMiddleware(s.deps.Observer))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "yieldscope"})
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/meta", s.handleMeta)

		r.Get("/opportunities", s.handleListOpportunities)
		r.Get("/opportunities/best", s.handleBestOpportunity)
		r.Get("/opportunities/compare", s.handleCompare)
		r.Get("/stats", s.handleStats)

		r.Post("/move-cost", s.handleMoveCost)
		r.Post("/swap-quote", s.handleSwapQuote)
		r.Get("/gas/{chainID}", s.handleGasPrices)

		r.Get("/positions/{owner}", s.handlePositions)
		r.Get("/positions/{owner}/moves", s.handlePositionMoves)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
