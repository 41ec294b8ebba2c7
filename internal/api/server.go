// Package api serves the latest report over HTTP, Prometheus metrics, and the standard gRPC
// health service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	v1 "nettop/api/v1"
	"nettop/internal/config"
	"nettop/internal/model"
	"nettop/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// Server keeps the most recent report and serves it. It is a model.Writer so the window
// controller feeds it like any other output.
type Server struct {
	cfg     config.APIConfig
	log     logrus.FieldLogger
	querier storage.Querier
	router  *mux.Router

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	mu     sync.RWMutex
	latest *model.Report
}

// NewServer creates the server. querier may be nil, in which case /api/v1/history is not
// available.
func NewServer(cfg config.APIConfig, gatherer prometheus.Gatherer, querier storage.Querier, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		querier: querier,
		router:  mux.NewRouter(),
		health:  health.NewServer(),
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	s.router.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	s.router.HandleFunc("/api/v1/top", s.topHandler).Methods("GET")
	s.router.HandleFunc("/api/v1/history", s.historyHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the gRPC health service implementation.
func (s *Server) Health() *health.Server {
	return s.health
}

// Start opens the HTTP listener and, when configured, the gRPC health listener.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.log.WithField("addr", lis.Addr().String()).Info("HTTP API server starting")
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP API server failed")
		}
	}()

	if s.cfg.GRPCAddr == "" {
		return nil
	}
	glis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		s.shutdownHTTP()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
	}
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	go func() {
		s.log.WithField("addr", glis.Addr().String()).Info("gRPC health server starting")
		if err := s.grpcServer.Serve(glis); err != nil {
			s.log.WithError(err).Error("gRPC health server failed")
		}
	}()
	return nil
}

// SetServing flips the gRPC health status. It is SERVING while capture runs.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

func (s *Server) Name() string { return "api" }

// Write stores r as the latest report.
func (s *Server) Write(r *model.Report) error {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
	return nil
}

// Latest returns the most recent report, or nil before the first window.
func (s *Server) Latest() *model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Close stops both listeners and releases the history querier.
func (s *Server) Close() error {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	err := s.shutdownHTTP()
	if s.querier != nil {
		if qerr := s.querier.Close(); err == nil {
			err = qerr
		}
	}
	return err
}

func (s *Server) shutdownHTTP() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.Latest() == nil {
		status = "collecting"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) topHandler(w http.ResponseWriter, r *http.Request) {
	report := s.Latest()
	if report == nil {
		http.Error(w, "no report yet", http.StatusServiceUnavailable)
		return
	}

	jsonBytes, err := v1.MarshalReportJSON(report)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

// historyHandler serves per-flow totals summed over windows stored by the ClickHouse
// exporter. These totals are read from the external store only; the live flow table is still
// reset every window and never reloaded from them.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		http.Error(w, "history requires an enabled clickhouse exporter", http.StatusNotFound)
		return
	}

	hq, err := parseHistoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	totals, err := s.querier.TopFlows(r.Context(), hq)
	if err != nil {
		s.log.WithError(err).Warn("History query failed")
		http.Error(w, fmt.Sprintf("failed to query flows: %v", err), http.StatusInternalServerError)
		return
	}
	if totals == nil {
		totals = []storage.FlowTotal{}
	}
	writeJSON(w, http.StatusOK, totals)
}

func parseHistoryQuery(r *http.Request) (storage.HistoryQuery, error) {
	q := r.URL.Query()
	hq := storage.HistoryQuery{Interface: q.Get("interface")}

	var err error
	if v := q.Get("since"); v != "" {
		if hq.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return hq, fmt.Errorf("invalid since: %v", err)
		}
	}
	if v := q.Get("until"); v != "" {
		if hq.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return hq, fmt.Errorf("invalid until: %v", err)
		}
	}
	if v := q.Get("limit"); v != "" {
		if hq.Limit, err = strconv.Atoi(v); err != nil || hq.Limit <= 0 {
			return hq, fmt.Errorf("invalid limit %q", v)
		}
	}
	return hq, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
