package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mppchs/internal/platform/config"
)

func TestNew_UsesConfiguredTimeouts(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Server{
		Addr:              ":9090",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       4 * time.Second,
		WriteTimeout:      6 * time.Second,
		IdleTimeout:       8 * time.Second,
	}
	srv := New(cfg, http.NotFoundHandler(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 2*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 4*time.Second, srv.ReadTimeout)
	assert.Equal(t, 6*time.Second, srv.WriteTimeout)
	assert.Equal(t, 8*time.Second, srv.IdleTimeout)

	srv.ErrorLog.Print("tls: handshake failure")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "handshake failure")
}
