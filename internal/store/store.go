// Package store is the durable flat-file state of the system: resale-price
// CSV segments, the building JSON store, the quarterly aggregate CSV, and
// their metadata sidecars.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/records"
)

const (
	buildingsFile = "properties_combined.json"
	aggPricesFile = "agg_prices.csv"
	geoJSONFile   = "PlanningBoundaryArea.geojson"
)

// Store reads and writes the data directory. Closed segments are immutable
// and cached after first load. Not safe for concurrent writers; the system
// runs one update per family at a time.
type Store struct {
	dir   string
	log   *zap.Logger
	cache map[string][]records.Transaction
}

// New creates a store over the given data directory, creating it if
// needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir, log: log, cache: make(map[string][]records.Transaction)}, nil
}

// Path resolves a file name inside the data directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// GeoJSONPath returns the planning-boundary file path.
func (s *Store) GeoJSONPath() string {
	return s.Path(geoJSONFile)
}

// SegmentExists reports whether a segment file has been materialized.
func (s *Store) SegmentExists(seg Segment) bool {
	_, err := os.Stat(s.Path(seg.File))
	return err == nil
}

// --- transactions (CSV segments) ---

var txHeader = []string{
	"date", "town", "flat_type", "block", "street", "storey_range",
	"floor_area_sqm", "flat_model", "lease_commence_date", "remaining_lease",
	"price", "price_per_sqm",
}

// LoadSegment reads one segment. A missing file yields an empty slice, so
// the first update of the open segment starts from nothing.
func (s *Store) LoadSegment(seg Segment) ([]records.Transaction, error) {
	if !seg.IsOpen() {
		if cached, ok := s.cache[seg.File]; ok {
			return cached, nil
		}
	}

	f, err := os.Open(s.Path(seg.File))
	if os.IsNotExist(err) {
		s.log.Warn("segment file does not exist", zap.String("segment", seg.Name))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", seg.Name, err)
	}
	defer f.Close()

	rows, err := readTransactions(f)
	if err != nil {
		return nil, fmt.Errorf("reading segment %s: %w", seg.Name, err)
	}

	if !seg.IsOpen() {
		s.cache[seg.File] = rows
	}
	return rows, nil
}

// SaveSegment rewrites a segment atomically (temp file + rename). Closed
// segments are write-once: overwriting an existing one is refused.
func (s *Store) SaveSegment(seg Segment, rows []records.Transaction) error {
	if !seg.IsOpen() && s.SegmentExists(seg) {
		return fmt.Errorf("segment %s is closed and already materialized", seg.Name)
	}

	err := s.writeAtomic(s.Path(seg.File), func(w io.Writer) error {
		return writeTransactions(w, rows)
	})
	if err != nil {
		return fmt.Errorf("saving segment %s: %w", seg.Name, err)
	}

	delete(s.cache, seg.File)
	s.log.Info("segment saved", zap.String("segment", seg.Name), zap.Int("records", len(rows)))
	return nil
}

// ReadRange loads only the segments overlapping [start, end] and returns
// their transactions filtered to the exact bounds.
func (s *Store) ReadRange(start, end time.Time) ([]records.Transaction, error) {
	var out []records.Transaction
	for _, seg := range Segments {
		if !seg.Overlaps(start.Year(), end.Year()) {
			continue
		}

		rows, err := s.LoadSegment(seg)
		if err != nil {
			return nil, err
		}
		for _, tx := range rows {
			d, err := period.ParseDate(tx.Date)
			if err != nil {
				continue
			}
			if !d.Before(start) && !d.After(end) {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}

func readTransactions(r io.Reader) ([]records.Transaction, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []records.Transaction
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		tx := records.Transaction{
			Date:           get(row, "date"),
			Town:           get(row, "town"),
			FlatType:       get(row, "flat_type"),
			Block:          get(row, "block"),
			Street:         get(row, "street"),
			StoreyRange:    get(row, "storey_range"),
			FlatModel:      get(row, "flat_model"),
			LeaseStart:     get(row, "lease_commence_date"),
			RemainingLease: get(row, "remaining_lease"),
		}
		tx.FloorArea, _ = strconv.ParseFloat(get(row, "floor_area_sqm"), 64)
		tx.Price, _ = strconv.ParseFloat(get(row, "price"), 64)
		tx.PricePerSqm, _ = strconv.ParseFloat(get(row, "price_per_sqm"), 64)
		out = append(out, tx)
	}
	return out, nil
}

func writeTransactions(w io.Writer, rows []records.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(txHeader); err != nil {
		return err
	}

	for _, tx := range rows {
		perSqm := ""
		if tx.PricePerSqm != 0 {
			perSqm = strconv.FormatFloat(tx.PricePerSqm, 'f', -1, 64)
		}
		rec := []string{
			tx.Date, tx.Town, tx.FlatType, tx.Block, tx.Street, tx.StoreyRange,
			strconv.FormatFloat(tx.FloorArea, 'f', -1, 64),
			tx.FlatModel, tx.LeaseStart, tx.RemainingLease,
			strconv.FormatFloat(tx.Price, 'f', -1, 64),
			perSqm,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// --- buildings (JSON store) ---

// LoadBuildings reads the building store. Missing file yields empty.
func (s *Store) LoadBuildings() ([]records.Building, error) {
	data, err := os.ReadFile(s.Path(buildingsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading building store: %w", err)
	}

	var out []records.Building
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding building store: %w", err)
	}
	return out, nil
}

// SaveBuildings rewrites the building store atomically.
func (s *Store) SaveBuildings(rows []records.Building) error {
	err := s.writeAtomic(s.Path(buildingsFile), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(rows)
	})
	if err != nil {
		return fmt.Errorf("saving building store: %w", err)
	}
	s.log.Info("building store saved", zap.Int("records", len(rows)))
	return nil
}

// --- aggregated prices (single CSV) ---

var aggHeader = []string{"quarter", "town", "flat_type", "price"}

// LoadAggPrices reads the aggregate store. Missing file yields empty.
func (s *Store) LoadAggPrices() ([]records.AggPrice, error) {
	f, err := os.Open(s.Path(aggPricesFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening aggregate store: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading aggregate header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []records.AggPrice
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading aggregate row: %w", err)
		}
		out = append(out, records.AggPrice{
			Quarter:  get(row, "quarter"),
			Town:     get(row, "town"),
			FlatType: get(row, "flat_type"),
			Price:    get(row, "price"),
		})
	}
	return out, nil
}

// SaveAggPrices rewrites the aggregate store atomically.
func (s *Store) SaveAggPrices(rows []records.AggPrice) error {
	err := s.writeAtomic(s.Path(aggPricesFile), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(aggHeader); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write([]string{r.Quarter, r.Town, r.FlatType, r.Price}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("saving aggregate store: %w", err)
	}
	s.log.Info("aggregate store saved", zap.Int("records", len(rows)))
	return nil
}

// writeAtomic stages the content in a temp file and renames it into place,
// so a crash mid-save never leaves a half-written store.
func (s *Store) writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
