package cli

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/nava/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("stopped", func(t *testing.T) {
		out, _, err := execute(t, "", "--config", writeTestConfig(t, nil), "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running with health", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","ready":true,"sessions":2}`))
		}))
		defer srv.Close()

		host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
		require.NoError(t, err)
		p, err := strconv.Atoi(port)
		require.NoError(t, err)

		path := writeTestConfig(t, map[string]interface{}{
			"gateway": map[string]interface{}{"host": host, "port": p},
		})
		dataDir := filepath.Join(filepath.Dir(path), "data")
		require.NoError(t, os.MkdirAll(dataDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, "nava.pid"), []byte(strconv.Itoa(os.Getpid())), 0644))

		out, _, err := execute(t, "", "--config", path, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out, "Agent ready: true")
		assert.Contains(t, out, "Sessions: 2")
	})
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8000/healthz", healthURL(config.GatewayConfig{Host: "0.0.0.0", Port: 8000}))
	assert.Equal(t, "http://127.0.0.1:8000/healthz", healthURL(config.GatewayConfig{Port: 8000}))
	assert.Equal(t, "http://[::1]:9000/healthz", healthURL(config.GatewayConfig{Host: "::1", Port: 9000}))
}

func TestFetchHealth(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := fetchHealth(srv.URL)
		assert.ErrorContains(t, err, "unexpected status 503")
	})

	t.Run("invalid body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := fetchHealth(srv.URL)
		assert.ErrorContains(t, err, "invalid health response")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
