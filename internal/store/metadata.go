package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Metadata is the per-family sidecar written after every successful merge.
// Observability only: the store files themselves are the source of truth.
type Metadata struct {
	LastUpdated string `json:"last_updated"`
	LastPeriod  string `json:"last_month_added"`
	RecordCount int    `json:"record_count"`
}

// SegmentMetadata describes a materialized closed segment.
type SegmentMetadata struct {
	Period      string `json:"period"`
	CreatedDate string `json:"created_date"`
	RecordCount int    `json:"record_count"`
}

// WriteMetadata writes the sidecar for a dataset family ("properties",
// "prices_latest", "agg_prices_latest").
func (s *Store) WriteMetadata(family, lastPeriod string, count int) error {
	m := Metadata{
		LastUpdated: time.Now().Format(time.RFC3339),
		LastPeriod:  lastPeriod,
		RecordCount: count,
	}
	return s.writeJSON(family+"_metadata.json", m)
}

// ReadMetadata reads a family sidecar; nil when it does not exist yet.
func (s *Store) ReadMetadata(family string) (*Metadata, error) {
	data, err := os.ReadFile(s.Path(family + "_metadata.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", family, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", family, err)
	}
	return &m, nil
}

// WriteSegmentMetadata records when a closed segment was materialized.
func (s *Store) WriteSegmentMetadata(seg Segment, count int) error {
	m := SegmentMetadata{
		Period:      seg.Name,
		CreatedDate: time.Now().Format(time.RFC3339),
		RecordCount: count,
	}
	name := fmt.Sprintf("prices_%d_%d_metadata.json", seg.StartYear, seg.EndYear)
	if seg.IsOpen() {
		name = "prices_latest_metadata.json"
	}
	return s.writeJSON(name, m)
}

func (s *Store) writeJSON(name string, v any) error {
	err := s.writeAtomic(s.Path(name), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
