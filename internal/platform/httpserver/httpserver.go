// Package httpserver builds the HTTP server with sane defaults for this project.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. The decision path has a sub-100ms budget, so the
// read/write timeouts here are about protecting the listener, not the budget.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
