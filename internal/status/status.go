// Package status serves a small HTTP surface for health checks and
// request progress lookups.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/waterinstitute/metget/internal/database"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/version"
)

// Server exposes the status endpoints.
type Server struct {
	client   *database.Client
	requests *database.RequestStore
	http     *http.Server
}

// NewServer builds a status server listening on addr.
func NewServer(addr string, client *database.Client, requests *database.RequestStore) *Server {
	s := &Server{client: client, requests: requests}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/requests/{id}", s.handleRequest).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("status server listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// requestView is the public shape of a queue row.
type requestView struct {
	RequestID   string    `json:"request_id"`
	Status      string    `json:"status"`
	Try         int       `json:"try"`
	StartDate   time.Time `json:"start_date"`
	LastDate    time.Time `json:"last_date"`
	Message     string    `json:"message,omitempty"`
	CreditUsage int64     `json:"credit_usage"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := s.requests.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such request"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, requestView{
		RequestID:   req.RequestID,
		Status:      string(req.Status),
		Try:         req.Try,
		StartDate:   req.StartDate,
		LastDate:    req.LastDate,
		Message:     req.Message,
		CreditUsage: req.CreditUsage,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encoding status response: %v", err)
	}
}
