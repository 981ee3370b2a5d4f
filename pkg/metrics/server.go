package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Route is an extra handler mounted on the metrics server.
type Route struct {
	Pattern string
	Handler http.Handler
}

// StartServer serves the registry on :port/metrics, plus any extra routes,
// until shutdown is called.
func (m *Metrics) StartServer(port int, routes ...Route) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>Retrieval Engine Metrics</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
