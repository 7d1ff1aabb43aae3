package server

import (
	"net/http"
	"time"

	"whatisyourcolor/internal/config"
)

// Default timeouts when the configuration leaves them unset
const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

func New(cfg *config.Config, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	if s := cfg.Server; s != nil {
		if s.ReadTimeout > 0 {
			srv.ReadTimeout = s.ReadTimeout
		}
		if s.WriteTimeout > 0 {
			srv.WriteTimeout = s.WriteTimeout
		}
		if s.IdleTimeout > 0 {
			srv.IdleTimeout = s.IdleTimeout
		}
	}

	return srv
}
