package moisture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type api struct {
	engine  *Engine
	store   *attribute.Store
	metrics *Metrics
}

type joinedRequest struct {
	Joined bool `json:"joined"`
}

// NewRouter returns the local HTTP API for the engine.
func NewRouter(engine *Engine, store *attribute.Store, metrics *Metrics) http.Handler {
	a := &api{engine: engine, store: store, metrics: metrics}
	r := mux.NewRouter()
	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/measure/moisture", a.measureMoisture).Methods("POST")
	r.HandleFunc("/api/measure/battery", a.measureBattery).Methods("POST")
	r.HandleFunc("/api/joined", a.setJoined).Methods("PUT")
	r.HandleFunc("/api/attributes", a.attributes).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	return handlers.RecoveryHandler()(r)
}

func serveHTTP(address string, handler http.Handler) {
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("Serving HTTP API on %s", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("HTTP server stopped: %v", err)
	}
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.engine.Status)
}

func (a *api) measureMoisture(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.engine.MeasureMoisture)
}

func (a *api) measureBattery(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.engine.MeasureBattery)
}

// attributes lists the retained published reports, oldest first.
func (a *api) attributes(w http.ResponseWriter, r *http.Request) {
	reports := []attribute.Report{}
	if a.store != nil {
		reports = append(reports, a.store.History()...)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

func (a *api) setJoined(w http.ResponseWriter, r *http.Request) {
	var req joinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	log.Infof("Join state set to %t over HTTP", req.Joined)
	a.engine.SetJoined(req.Joined)
	a.respond(w, r, a.engine.Status)
}

func (a *api) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (Status, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	st, err := fn(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}
