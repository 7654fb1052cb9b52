// cmd/worker-manager/server.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type readinessCheck func(ctx context.Context) error

func newHTTPServer(port int, checks map[string]readinessCheck) *http.Server {
	if port == 0 {
		port = 8080
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMux(checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func newMux(checks map[string]readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", readyHandler(checks))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// readyHandler reports 503 when any dependency check fails.
func readyHandler(checks map[string]readinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		writeJSON(w, status, map[string]interface{}{
			"status": state,
			"checks": results,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
