package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	srv := httptest.NewServer(NewServer(st, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	var body map[string]string
	resp := getJSON(t, srv.URL+"/readyz", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ready", body["status"])
}

func TestProgressReportsEntityCounts(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.InsertInstitution(ctx, catalog.Institution{ID: 1, Name: "Faculty of Sciences"}))
	require.NoError(t, st.InsertDepartment(ctx, catalog.Department{ID: 9, Name: "Informatics", InstitutionID: 1}))

	var body progressResponse
	resp := getJSON(t, srv.URL+"/progress", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(1), body.Counts["institutions"])
	require.Equal(t, int64(1), body.Counts["departments"])
	require.Equal(t, int64(0), body.Counts["students"])
	require.False(t, body.Timestamp.IsZero())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
