// Package server exposes the read API over HTTP/JSON (grpc-gateway mux)
// plus a gRPC endpoint carrying health and reflection. Mutations arrive
// over NATS; the only write surface here is admin curve injection, which
// serializes through the same event channel as NATS consumers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/drift-labs/protocol-v2-sub006/internal/ingestion"
	"github.com/drift-labs/protocol-v2-sub006/internal/margin"
	"github.com/drift-labs/protocol-v2-sub006/internal/observability"
	"github.com/drift-labs/protocol-v2-sub006/internal/query"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	QueryService  *query.Service
	Injector      *ingestion.AdminInjector
	Metrics       *observability.Metrics
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
	Log           zerolog.Logger
}

// NewGRPCServer creates the server with health and reflection registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.deps.Log.Info().Msg("grpc server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.deps.Log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/users/{user_id}/margin", s.handleMarginCheck},
		{"GET", "/v1/users/{user_id}/positions", s.handlePositions},
		{"GET", "/v1/users/{user_id}/withdrawable/{market_index}", s.handleMaxWithdrawable},
		{"GET", "/v1/markets/{market_index}", s.handleMarket},
		{"GET", "/v1/markets/{market_index}/bidask", s.handleBidAsk},
		{"POST", "/v1/admin/curve/repeg", s.handleRepeg},
		{"POST", "/v1/admin/curve/update-k", s.handleUpdateK},
		{"POST", "/v1/admin/curve/budgeted-k", s.handleBudgetedK},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.deps.Log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.deps.Log.Info().Str("addr", s.httpAddr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Read handlers
// ============================================================================

func (s *GRPCServer) handleMarginCheck(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	const endpoint = "margin_check"
	start := time.Now()

	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	mctx, err := parseMarginContext(r)
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.QueryService.MarginCheck(r.Context(), userID, mctx)
	if err != nil {
		s.writeError(w, endpoint, statusFor(err), err)
		return
	}

	s.writeJSON(w, endpoint, start, resp)
}

func (s *GRPCServer) handlePositions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	const endpoint = "positions"
	start := time.Now()

	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	resp, err := s.deps.QueryService.Positions(r.Context(), userID)
	if err != nil {
		s.writeError(w, endpoint, statusFor(err), err)
		return
	}

	s.writeJSON(w, endpoint, start, resp)
}

func (s *GRPCServer) handleMaxWithdrawable(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	const endpoint = "max_withdrawable"
	start := time.Now()

	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("invalid user_id: %w", err))
		return
	}
	marketIndex, err := parseMarketIndex(pathParams["market_index"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.QueryService.MaxWithdrawable(r.Context(), userID, marketIndex)
	if err != nil {
		s.writeError(w, endpoint, statusFor(err), err)
		return
	}

	s.writeJSON(w, endpoint, start, resp)
}

func (s *GRPCServer) handleMarket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	const endpoint = "market"
	start := time.Now()

	marketIndex, err := parseMarketIndex(pathParams["market_index"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.QueryService.Market(r.Context(), marketIndex)
	if err != nil {
		s.writeError(w, endpoint, statusFor(err), err)
		return
	}

	s.writeJSON(w, endpoint, start, resp)
}

func (s *GRPCServer) handleBidAsk(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	const endpoint = "bid_ask"
	start := time.Now()

	marketIndex, err := parseMarketIndex(pathParams["market_index"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.QueryService.BidAsk(r.Context(), marketIndex)
	if err != nil {
		s.writeError(w, endpoint, statusFor(err), err)
		return
	}

	s.writeJSON(w, endpoint, start, resp)
}

// ============================================================================
// Admin curve handlers
// ============================================================================

type repegRequest struct {
	MarketIndex uint16 `json:"market_index"`
	NewPeg      int64  `json:"new_peg"`
}

func (s *GRPCServer) handleRepeg(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	const endpoint = "admin_repeg"
	start := time.Now()

	var req repegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := s.deps.Injector.InjectRepeg(r.Context(), req.MarketIndex, req.NewPeg); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, endpoint, start, map[string]bool{"accepted": true})
}

type updateKRequest struct {
	MarketIndex uint16 `json:"market_index"`
	NewSqrtK    int64  `json:"new_sqrt_k"`
}

func (s *GRPCServer) handleUpdateK(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	const endpoint = "admin_update_k"
	start := time.Now()

	var req updateKRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := s.deps.Injector.InjectUpdateK(r.Context(), req.MarketIndex, req.NewSqrtK); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, endpoint, start, map[string]bool{"accepted": true})
}

type budgetedKRequest struct {
	MarketIndex   uint16 `json:"market_index"`
	Budget        int64  `json:"budget"`
	UpperBoundPct int64  `json:"upper_bound_pct"`
	LowerBoundPct int64  `json:"lower_bound_pct"`
}

func (s *GRPCServer) handleBudgetedK(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	const endpoint = "admin_budgeted_k"
	start := time.Now()

	var req budgetedKRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := s.deps.Injector.InjectBudgetedK(r.Context(), req.MarketIndex, req.Budget, req.UpperBoundPct, req.LowerBoundPct); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, endpoint, start, map[string]bool{"accepted": true})
}

// ============================================================================
// Helpers
// ============================================================================

func parseMarketIndex(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid market_index: %w", err)
	}
	return uint16(v), nil
}

func parseMarginContext(r *http.Request) (margin.Context, error) {
	mode := r.URL.Query().Get("mode")
	switch mode {
	case "", "initial":
		return margin.Context{Mode: margin.ModeInitial}, nil
	case "maintenance":
		return margin.Context{Mode: margin.ModeMaintenance}, nil
	case "fill":
		riskIncreasing := r.URL.Query().Get("risk_increasing") == "true"
		return margin.Context{Mode: margin.ModeFill, RiskIncreasing: riskIncreasing}, nil
	default:
		return margin.Context{}, fmt.Errorf("unknown mode %q (want initial, maintenance, or fill)", mode)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrUserNotFound), errors.Is(err, query.ErrMarketNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *GRPCServer) writeJSON(w http.ResponseWriter, endpoint string, start time.Time, payload any) {
	s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.deps.Log.Warn().Err(err).Msg("write response failed")
	}
}

func (s *GRPCServer) writeError(w http.ResponseWriter, endpoint string, code int, err error) {
	s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
	s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
