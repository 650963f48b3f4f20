// Package api exposes the read-only query surface the downstream ticket
// system consumes, plus operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"vigil/config"
	"vigil/core"
	"vigil/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// EventStorer is the event store read interface the API depends on.
type EventStorer interface {
	GetEvents(ctx context.Context, limit, offset int) ([]core.RawEvent, error)
	GetEvent(ctx context.Context, id string) (*core.RawEvent, error)
	CountEvents(ctx context.Context) (int64, error)
}

// API is the HTTP server for event reads, health and metrics.
type API struct {
	eventStorage EventStorer
	server       *http.Server
	logger       *zap.SugaredLogger
	wg           sync.WaitGroup
}

// NewAPI creates the API server.
func NewAPI(cfg *config.Config, eventStorage EventStorer, logger *zap.SugaredLogger) *API {
	a := &API{
		eventStorage: eventStorage,
		logger:       logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/events", a.getEvents).Methods("GET")
	r.HandleFunc("/api/v1/events/count", a.getEventCount).Methods("GET")
	r.HandleFunc("/api/v1/events/{id}", a.getEvent).Methods("GET")
	r.HandleFunc("/healthz", a.healthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a
}

// Start starts the API server.
func (a *API) Start() error {
	a.logger.Infof("API server started on %s", a.server.Addr)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Errorf("API server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the API server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.wg.Wait()
	return nil
}

// respondJSON writes a JSON response with proper error handling.
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// getEvents returns persisted events newest-first.
func (a *API) getEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100, 1, 1000)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	events, err := a.eventStorage.GetEvents(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorf("Failed to get events: %v", err)
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, events, http.StatusOK)
}

// getEvent returns a single event by ID.
func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := a.eventStorage.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		a.logger.Errorf("Failed to get event %s: %v", id, err)
		http.Error(w, "Failed to get event", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, event, http.StatusOK)
}

// getEventCount returns the total number of persisted events.
func (a *API) getEventCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.eventStorage.CountEvents(r.Context())
	if err != nil {
		a.logger.Errorf("Failed to count events: %v", err)
		http.Error(w, "Failed to count events", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, map[string]int64{"count": count}, http.StatusOK)
}

// healthz reports liveness.
func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// queryInt parses a bounded integer query parameter with a default.
func queryInt(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < min || n > max {
		return def
	}
	return n
}
