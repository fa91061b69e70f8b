package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/fabiand/igor/internal/api"
	"github.com/fabiand/igor/pkg/log"
)

// newHTTPServer assembles the router and middleware chain the way the
// teacher's cmd/cc-backend/server.go does: gorilla/mux for routing,
// gorilla/handlers for compression, panic recovery, CORS and access
// logging, wrapped in a *http.Server with conservative timeouts.
func newHTTPServer(srv *api.Server) *http.Server {
	r := mux.NewRouter()
	srv.MountRoutes(r)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"}),
	))

	logged := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Infof("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	return &http.Server{
		Handler:      logged,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// shutdown drains in-flight requests before the caller proceeds to stop
// the job center and event publisher.
func shutdown(s *http.Server) {
	if err := s.Shutdown(context.Background()); err != nil {
		log.Errorf("igord: http shutdown: %v", err)
	}
}
