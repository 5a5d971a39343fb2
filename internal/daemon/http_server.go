package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conveyor/internal/api"
	"conveyor/internal/logging"
	"conveyor/internal/services"
)

// statusSource is what the HTTP handlers read. *Daemon satisfies it.
type statusSource interface {
	Status(ctx context.Context) Status
	Service() *api.Service
}

// httpServer serves prometheus metrics plus a read-only JSON view of the queue.
type httpServer struct {
	bind     string
	logger   *slog.Logger
	source   statusSource
	listener net.Listener
	server   *http.Server
}

func newHTTPServer(bind string, source statusSource, gatherer prometheus.Gatherer, logger *slog.Logger) (*httpServer, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("metrics bind address is empty")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &httpServer{bind: bind, logger: logger, source: source}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/queue/", s.handleTransfer)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *httpServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.listener = listener
	s.log().Info("metrics endpoint listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// serve blocks until ctx is cancelled, then shuts the server down.
func (s *httpServer) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	return <-errCh
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.source.Status(r.Context())
	s.writeJSON(w, http.StatusOK, status.Engine)
}

func (s *httpServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	svc := s.source.Service()
	var (
		transfers []api.Transfer
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view"))) {
	case "", "current":
		transfers, err = svc.CurrentQueue(r.Context())
	case "recent":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		transfers, err = svc.RecentQueue(r.Context(), limit)
	case "errors":
		transfers, err = svc.ErrorQueue(r.Context())
	case "warnings":
		transfers, err = svc.WarningQueue(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "unknown queue view")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (s *httpServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "transfer not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	transfer, err := s.source.Service().Describe(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *httpServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "http"))
	}
	return logging.NewNop()
}
