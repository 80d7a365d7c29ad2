package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/rijin-bot/internal/ai"
	"github.com/kirillm/rijin-bot/internal/engine"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// StatusProvider источник состояния циклов; реализуется orchestrator.Orchestrator
type StatusProvider interface {
	Status() []engine.Status
	Halted() map[string]error
	IsRunning() bool
}

// AIStatsProvider счетчики AI фильтра; реализуется ai.FailOpen
type AIStatsProvider interface {
	Stats() ai.Stats
}

type Server struct {
	logger   *utils.Logger
	status   StatusProvider
	aiStats  AIStatsProvider
	gatherer prometheus.Gatherer
	addr     string
	started  time.Time
	server   *http.Server
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse тело /status
type StatusResponse struct {
	Running     bool              `json:"running"`
	Instruments []engine.Status   `json:"instruments"`
	Halted      map[string]string `json:"halted,omitempty"`
	AI          *ai.Stats         `json:"ai,omitempty"`
}

// NewServer создает HTTP сервер статуса; aiStats может быть nil, gatherer nil означает DefaultGatherer
func NewServer(logger *utils.Logger, addr string, status StatusProvider, aiStats AIStatsProvider, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		logger:   logger,
		status:   status,
		aiStats:  aiStats,
		gatherer: gatherer,
		addr:     addr,
		started:  time.Now(),
	}
}

// Handler маршруты сервера
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start слушает addr до отмены контекста
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Starting HTTP server on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// handleHealth 503 если хотя бы один цикл остановлен ошибкой
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	halted := s.status.Halted()
	health := map[string]interface{}{
		"status":    "healthy",
		"running":   s.status.IsRunning(),
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	if len(halted) > 0 {
		health["status"] = "degraded"
		health["halted"] = errorStrings(halted)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(Response{Success: false, Data: health, Error: "instrument loop halted"})
		return
	}

	s.sendSuccess(w, health)
}

// handleStatus состояние инструментов; ?instrument=NIFTY фильтрует
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := s.status.Status()
	if name := r.URL.Query().Get("instrument"); name != "" {
		var filtered []engine.Status
		for _, st := range statuses {
			if st.Instrument == name {
				filtered = append(filtered, st)
			}
		}
		if len(filtered) == 0 {
			s.sendError(w, "Unknown instrument: "+name, http.StatusNotFound)
			return
		}
		statuses = filtered
	}

	resp := StatusResponse{
		Running:     s.status.IsRunning(),
		Instruments: statuses,
		Halted:      errorStrings(s.status.Halted()),
	}
	if s.aiStats != nil {
		st := s.aiStats.Stats()
		resp.AI = &st
	}
	s.sendSuccess(w, resp)
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}

func errorStrings(errs map[string]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[k] = v.Error()
	}
	return out
}
