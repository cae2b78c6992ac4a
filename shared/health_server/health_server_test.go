package health_server

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	hs := NewHealthServer("0")
	srv := httptest.NewServer(hs.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestStatusEndpoint(t *testing.T) {
	hs := NewHealthServer("0")
	srv := httptest.NewServer(hs.Handler())
	defer srv.Close()

	completed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hs.SetStatus(Status{
		Identity:   "00:11:22:33:44:55/42",
		State:      "Slave",
		Master:     "00:11:22:33:44:00/7",
		MasterAddr: "10.0.0.1:5000",
		LastRound: &RoundStatus{
			ID:          "round-1",
			Responses:   2,
			Brightness:  80,
			Text:        "avg_temp=22 nodes=3",
			CompletedAt: completed,
		},
	})

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Slave", got.State)
	assert.Equal(t, "00:11:22:33:44:00/7", got.Master)
	require.NotNil(t, got.LastRound)
	assert.Equal(t, int32(80), got.LastRound.Brightness)
	assert.True(t, completed.Equal(got.LastRound.CompletedAt))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStatusBeforeFirstUpdate(t *testing.T) {
	hs := NewHealthServer("0")
	assert.Equal(t, "Starting", hs.Status().State)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	hs := NewHealthServer("0")
	srv := httptest.NewServer(hs.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStartAndStop(t *testing.T) {
	hs := NewHealthServer("0")
	require.NoError(t, hs.Start())
	defer hs.Stop()

	port := hs.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
