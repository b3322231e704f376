package router

import (
	"net/http"
	"time"
)

// NewServer creates a new HTTP server serving the router. Live channels clear
// their own write deadline.
func NewServer(port string, r *Router) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      r.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
