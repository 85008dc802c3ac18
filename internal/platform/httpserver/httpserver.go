package httpserver

import (
	"log/slog"
	"net/http"

	"mppchs/internal/platform/config"
)

// New builds the API server from the server configuration. Errors raised by
// net/http itself (TLS handshakes, malformed requests) go to logger at warn.
func New(cfg config.Server, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
