package healthapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthRouteReturnsOK(t *testing.T) {
	s := New("honeysensor-test", ":0")

	req := httptest.NewRequest(http.MethodGet, HealthRoute, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), healthy)
}

func TestReadyRouteReflectsReadyFunc(t *testing.T) {
	ready := false
	s := New("honeysensor-test", ":0", WithReadyCheck(func() (bool, string) {
		if ready {
			return true, ""
		}
		return false, "pcap handle not open"
	}))

	req := httptest.NewRequest(http.MethodGet, ReadyRoute, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	req = httptest.NewRequest(http.MethodGet, ReadyRoute, nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRouteReturnsStatusFuncPayload(t *testing.T) {
	type status struct {
		Flows int `json:"flows"`
	}
	s := New("honeysensor-test", ":0", WithStatus(func() any {
		return status{Flows: 42}
	}))

	req := httptest.NewRequest(http.MethodGet, StatusRoute, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"flows":42`)
}

func TestMetricsRouteIsRegistered(t *testing.T) {
	s := New("honeysensor-test", ":0")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
