// Package server exposes the read API over the segment store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/aggregate"
	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/records"
	"github.com/seayun/hdbmap/internal/store"
)

// Server serves the HTTP API and, when configured, the client assets.
type Server struct {
	store     *store.Store
	clientDir string
	log       *zap.Logger
}

// New creates a server over the given store. clientDir may be empty, in
// which case no static assets are served.
func New(st *store.Store, clientDir string, log *zap.Logger) *Server {
	return &Server{store: st, clientDir: clientDir, log: log}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(withCORS)

	r.HandleFunc("/api/properties", s.handleProperties).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/agg_prices", s.handleAggPrices).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/agg_address_prices", s.handleAddressPrices).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/prices", s.handlePrices).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/geojson", s.handleGeoJSON).Methods(http.MethodGet, http.MethodOptions)

	if s.clientDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.clientDir)))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	buildings, err := s.store.LoadBuildings()
	if err != nil {
		s.fail(w, "loading properties", err)
		return
	}
	if buildings == nil {
		buildings = []records.Building{}
	}
	s.writeJSON(w, map[string]any{"properties": buildings})
}

// aggPriceRow mirrors records.AggPrice but surfaces non-numeric prices
// (the source uses "-" for suppressed cells) as null.
type aggPriceRow struct {
	Quarter  string   `json:"quarter"`
	Town     string   `json:"town"`
	FlatType string   `json:"flat_type"`
	Price    *float64 `json:"price"`
}

func (s *Server) handleAggPrices(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LoadAggPrices()
	if err != nil {
		s.fail(w, "loading agg prices", err)
		return
	}

	out := make([]aggPriceRow, 0, len(rows))
	for _, row := range rows {
		o := aggPriceRow{Quarter: row.Quarter, Town: row.Town, FlatType: row.FlatType}
		if v, ok := row.PriceValue(); ok {
			o.Price = &v
		}
		out = append(out, o)
	}
	s.writeJSON(w, map[string]any{"prices": out})
}

func (s *Server) handleAddressPrices(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start, end, err := dateRange(r, now.AddDate(0, -6, 0), now)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	txs, err := s.store.ReadRange(start, end)
	if err != nil {
		s.fail(w, "reading price range", err)
		return
	}
	s.writeJSON(w, map[string]any{"prices": aggregate.ByAddress(txs)})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	defaultStart, _ := period.ParseStart("2022-01")
	start, end, err := dateRange(r, defaultStart, time.Now())
	if err != nil {
		s.badRequest(w, err)
		return
	}

	txs, err := s.store.ReadRange(start, end)
	if err != nil {
		s.fail(w, "reading price range", err)
		return
	}

	if towns := townFilter(r); len(towns) > 0 {
		filtered := txs[:0]
		for _, tx := range txs {
			if towns[strings.ToUpper(tx.Town)] {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	s.writeJSON(w, map[string]any{"prices": aggregate.ByStreetDate(txs)})
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.store.GeoJSONPath())
	if os.IsNotExist(err) {
		http.Error(w, "planning boundaries not available", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, "reading planning boundaries", err)
		return
	}
	s.writeJSON(w, map[string]json.RawMessage{"geojson": data})
}

// dateRange resolves the start_date and end_date query params, falling
// back to the given defaults. Values accept YYYY, YYYY-MM and YYYY-MM-DD;
// start coerces to the period start, end to the period end.
func dateRange(r *http.Request, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	start, end := defStart, defEnd

	if v := r.URL.Query().Get("start_date"); v != "" {
		t, err := period.ParseStart(v)
		if err != nil {
			return start, end, fmt.Errorf("start_date: %w", err)
		}
		start = t
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		t, err := period.ParseEnd(v)
		if err != nil {
			return start, end, fmt.Errorf("end_date: %w", err)
		}
		end = t
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end_date %s before start_date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return start, end, nil
}

// townFilter collects town names from the repeatable town param and the
// comma-separated towns param, upper-cased. Empty map means no filter.
func townFilter(r *http.Request) map[string]bool {
	out := make(map[string]bool)
	q := r.URL.Query()
	for _, v := range q["town"] {
		if v != "" {
			out[strings.ToUpper(v)] = true
		}
	}
	for _, v := range strings.Split(q.Get("towns"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out[strings.ToUpper(v)] = true
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", zap.Error(err))
	}
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
