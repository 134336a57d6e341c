package records

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/geocode"
)

// Geocoder resolves a block address to coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*geocode.Result, error)
}

// BuildingEnricher turns raw building rows into enriched Buildings:
// geocoded coordinates, category tag, and full town name.
type BuildingEnricher struct {
	geo Geocoder
	log *zap.Logger
}

// NewBuildingEnricher creates a building enricher.
func NewBuildingEnricher(geo Geocoder, log *zap.Logger) *BuildingEnricher {
	return &BuildingEnricher{geo: geo, log: log}
}

// Enrich geocodes and tags a batch. Rows that cannot be geocoded or carry
// an unknown town code are dropped; the batch continues. The returned
// count of dropped rows lets callers log the batch outcome.
func (e *BuildingEnricher) Enrich(ctx context.Context, raws []RawBuilding) ([]Building, int) {
	out := make([]Building, 0, len(raws))
	dropped := 0

	for _, raw := range raws {
		town, err := TownName(raw.TownCode)
		if err != nil {
			e.log.Error("dropping building row",
				zap.String("block", raw.Query()),
				zap.Error(err))
			dropped++
			continue
		}

		loc, err := e.geo.Lookup(ctx, raw.Query())
		if err != nil {
			if errors.Is(err, geocode.ErrNoMatch) {
				e.log.Warn("address not found, dropping row", zap.String("address", raw.Query()))
			} else {
				e.log.Warn("geocoding failed, dropping row",
					zap.String("address", raw.Query()),
					zap.Error(err))
			}
			dropped++
			continue
		}

		out = append(out, Building{
			Tag:         CategoryTag(raw),
			Lat:         loc.Lat,
			Lon:         loc.Lon,
			Town:        town,
			Address:     loc.Address,
			Street:      raw.Street,
			TotalUnits:  raw.TotalUnits,
			Year:        raw.YearCompleted,
			MaxFloorLvl: raw.MaxFloorLvl,
		})
	}

	return out, dropped
}
