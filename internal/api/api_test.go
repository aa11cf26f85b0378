package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/alerts"
	"github.com/incidentlens/incidentlens/internal/clean"
	"github.com/incidentlens/incidentlens/internal/config"
	"github.com/incidentlens/incidentlens/internal/history"
	"github.com/incidentlens/incidentlens/internal/pipeline"
	"github.com/incidentlens/incidentlens/internal/store"
)

// runReport puts a real pipeline run through the analytics so API tests
// exercise the same shapes the serve loop produces.
func runReport(t *testing.T) *pipeline.Report {
	t.Helper()

	var rows []clean.RawRecord
	days := []string{"2020-04-01", "2020-04-02", "2020-04-03"}
	for _, d := range days {
		rows = append(rows,
			clean.RawRecord{"date": d, "boro": "BRONX"},
			clean.RawRecord{"date": d, "boro": "QUEENS"},
		)
	}
	rows = append(rows,
		clean.RawRecord{"date": "2020-04-04", "boro": "BRONX"},
		clean.RawRecord{"date": "2020-04-04", "boro": "BRONX"},
		clean.RawRecord{"date": "2020-04-04", "boro": "BRONX"},
		clean.RawRecord{"date": "garbage", "boro": "BRONX"},
	)

	rep, err := pipeline.Run(context.Background(), rows, pipeline.Options{
		DateField: "date",
		GroupBy:   []string{"boro"},
		Unit:      aggregate.UnitDay,
		Window:    3,
	})
	require.NoError(t, err)
	return rep
}

func newServer(t *testing.T, rep *pipeline.Report, hist *history.Store) *httptest.Server {
	t.Helper()
	st := store.New(5 * time.Minute)
	if rep != nil {
		st.Put(rep)
	}
	srv := httptest.NewServer(New(st, alerts.New(config.AlertsConfig{}), hist))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	var got HealthResponse
	resp := getJSON(t, srv.URL+"/api/v1/health", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 2, got.KeysTracked)
	assert.NotEmpty(t, got.LastRunID)
}

func TestHealth_Empty(t *testing.T) {
	srv := newServer(t, nil, nil)

	var got HealthResponse
	getJSON(t, srv.URL+"/api/v1/health", &got)
	assert.Equal(t, "empty", got.Status)
}

func TestSummary(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	var got SummaryResponse
	resp := getJSON(t, srv.URL+"/api/v1/summary", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10, got.RowsIn)
	assert.Equal(t, 9, got.RowsKept)
	assert.Equal(t, 1, got.RowsDropped)
	assert.Equal(t, 2, got.KeyCount)
	require.NotEmpty(t, got.TopDeviations)
	// BRONX spikes from 1/day to 3 on 04-04: deviation 2.
	assert.Equal(t, "BRONX", got.TopDeviations[0].GroupKey)
	assert.InDelta(t, 2.0, got.TopDeviations[0].RelativeDeviation, 1e-9)
}

func TestSummary_NoRunYet(t *testing.T) {
	srv := newServer(t, nil, nil)
	resp := getJSON(t, srv.URL+"/api/v1/summary", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListKeys(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	var got []KeySummary
	getJSON(t, srv.URL+"/api/v1/keys", &got)
	require.Len(t, got, 2)
	assert.Equal(t, "BRONX", got[0].Key)
	assert.Equal(t, "QUEENS", got[1].Key)
	assert.Equal(t, 6, got[0].Total)
	require.NotNil(t, got[0].Slope)
	require.NotNil(t, got[0].MaxDeviation)
	assert.InDelta(t, 2.0, *got[0].MaxDeviation, 1e-9)
}

func TestGetKey(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	var got KeyResponse
	resp := getJSON(t, srv.URL+"/api/v1/keys/BRONX", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "BRONX", got.Key)
	assert.Len(t, got.Series, 4)
	assert.NotNil(t, got.Fit)
	require.Len(t, got.Deviations, 1)
	assert.Equal(t, "2020-04-04", got.Deviations[0].Key)
}

func TestGetKey_NotFound(t *testing.T) {
	srv := newServer(t, runReport(t), nil)
	resp := getJSON(t, srv.URL+"/api/v1/keys/GOTHAM", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeviations_Limit(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	var got []pipeline.RankedDeviation
	getJSON(t, srv.URL+"/api/v1/deviations?limit=1", &got)
	require.Len(t, got, 1)
	assert.Equal(t, "BRONX", got[0].GroupKey)
}

func TestAlerts_EmptyList(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	resp, err := http.Get(srv.URL + "/api/v1/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []alerts.Alert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got)
}

func TestRuns_DisabledHistory(t *testing.T) {
	srv := newServer(t, runReport(t), nil)
	resp := getJSON(t, srv.URL+"/api/v1/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuns_WithHistory(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	rep := runReport(t)
	require.NoError(t, hist.Save(context.Background(), rep))

	srv := newServer(t, rep, hist)

	var runs []history.RunSummary
	getJSON(t, srv.URL+"/api/v1/runs", &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)

	var devs []history.Deviation
	resp := getJSON(t, srv.URL+"/api/v1/runs/"+rep.RunID, &devs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, devs)
	assert.Equal(t, 1, devs[0].Rank)

	resp = getJSON(t, srv.URL+"/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, runReport(t), nil)

	resp, err := http.Post(srv.URL+"/api/v1/summary", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
