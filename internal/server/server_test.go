package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/records"
	"github.com/seayun/hdbmap/internal/store"
)

func seededServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	err = st.SaveBuildings([]records.Building{
		{Tag: "Residential", Lat: 1.32, Lon: 103.9, Town: "BEDOK", Address: "101 BEDOK NTH RD", Street: "BEDOK NTH RD", TotalUnits: 120, Year: 1980, MaxFloorLvl: 12},
	})
	require.NoError(t, err)

	err = st.SaveAggPrices([]records.AggPrice{
		{Quarter: "2024-Q1", Town: "BEDOK", FlatType: "4 ROOM", Price: "520000"},
		{Quarter: "2024-Q1", Town: "BUKIT TIMAH", FlatType: "EXECUTIVE", Price: "-"},
	})
	require.NoError(t, err)

	err = st.SaveSegment(store.OpenSegment(), []records.Transaction{
		{Date: "2024-03-01", Town: "BEDOK", FlatType: "4 ROOM", Block: "101", Street: "BEDOK NTH RD", Price: 500000},
		{Date: "2024-03-01", Town: "BEDOK", FlatType: "4 ROOM", Block: "101", Street: "BEDOK NTH RD", Price: 520000},
		{Date: "2024-03-01", Town: "TAMPINES", FlatType: "5 ROOM", Block: "823", Street: "TAMPINES ST 81", Price: 610000},
	})
	require.NoError(t, err)

	return New(st, "", zap.NewNop()), st
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestProperties(t *testing.T) {
	s, _ := seededServer(t)

	var resp struct {
		Properties []records.Building `json:"properties"`
	}
	decode(t, get(t, s, "/api/properties"), &resp)

	require.Len(t, resp.Properties, 1)
	require.Equal(t, "101 BEDOK NTH RD", resp.Properties[0].Address)
}

func TestAggPricesSurfacesMissingAsNull(t *testing.T) {
	s, _ := seededServer(t)

	var resp struct {
		Prices []struct {
			Town  string   `json:"town"`
			Price *float64 `json:"price"`
		} `json:"prices"`
	}
	decode(t, get(t, s, "/api/agg_prices"), &resp)

	require.Len(t, resp.Prices, 2)
	byTown := map[string]*float64{}
	for _, p := range resp.Prices {
		byTown[p.Town] = p.Price
	}
	require.NotNil(t, byTown["BEDOK"])
	require.Equal(t, 520000.0, *byTown["BEDOK"])
	require.Nil(t, byTown["BUKIT TIMAH"])
}

func TestAddressPricesMedian(t *testing.T) {
	s, _ := seededServer(t)

	var resp struct {
		Prices []struct {
			BlockStreet string  `json:"block_street"`
			FlatType    string  `json:"flat_type"`
			Price       float64 `json:"price"`
		} `json:"prices"`
	}
	decode(t, get(t, s, "/api/agg_address_prices?start_date=2024-03&end_date=2024-03"), &resp)

	require.Len(t, resp.Prices, 2)
	prices := map[string]float64{}
	for _, p := range resp.Prices {
		prices[p.BlockStreet] = p.Price
	}
	require.Equal(t, 510000.0, prices["101 BEDOK NTH RD"])
	require.Equal(t, 610000.0, prices["823 TAMPINES ST 81"])
}

func TestPricesTownFilter(t *testing.T) {
	s, _ := seededServer(t)

	var resp struct {
		Prices []struct {
			Street string `json:"street"`
		} `json:"prices"`
	}
	decode(t, get(t, s, "/api/prices?start_date=2024-01&end_date=2024-12&town=bedok"), &resp)

	require.Len(t, resp.Prices, 1)
	require.Equal(t, "BEDOK NTH RD", resp.Prices[0].Street)
}

func TestPricesTownsParam(t *testing.T) {
	s, _ := seededServer(t)

	var resp struct {
		Prices []json.RawMessage `json:"prices"`
	}
	decode(t, get(t, s, "/api/prices?start_date=2024-01&end_date=2024-12&towns=BEDOK,TAMPINES"), &resp)
	require.Len(t, resp.Prices, 2)
}

func TestBadDateParamRejected(t *testing.T) {
	s, _ := seededServer(t)

	rec := get(t, s, "/api/prices?start_date=march")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/prices?start_date=2024-06&end_date=2024-01")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeoJSON(t *testing.T) {
	s, st := seededServer(t)

	rec := get(t, s, "/api/geojson")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(st.GeoJSONPath(), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	rec = get(t, s, "/api/geojson")

	var resp struct {
		GeoJSON struct {
			Type string `json:"type"`
		} `json:"geojson"`
	}
	decode(t, rec, &resp)
	require.Equal(t, "FeatureCollection", resp.GeoJSON.Type)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := seededServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/properties", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
