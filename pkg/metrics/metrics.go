/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the controllers' counters on an optional
// Prometheus endpoint. The registry is process-local; when no address is
// configured the counters still accumulate but nothing is served.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

const namespace = "vsbackup"

// Metrics holds the counters both controllers update
type Metrics struct {
	Registry *prometheus.Registry

	SnapshotsTotal       *prometheus.CounterVec
	SnapshotRetriesTotal prometheus.Counter
	BackupsTotal         *prometheus.CounterVec
	CleanupErrorsTotal   prometheus.Counter
}

// NewMetrics builds a fresh registry with every counter registered
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Volume snapshot attempts by outcome",
		}, []string{"outcome"}),
		SnapshotRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_readiness_polls_total",
			Help:      "Readiness polls issued while waiting for snapshots",
		}),
		BackupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup spec attempts by outcome",
		}, []string{"outcome"}),
		CleanupErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Tracked-resource deletions that failed during per-spec teardown",
		}),
	}

	m.Registry.MustRegister(
		m.SnapshotsTotal,
		m.SnapshotRetriesTotal,
		m.BackupsTotal,
		m.CleanupErrorsTotal,
	)
	return m
}

// Serve starts serving /metrics on addr until ctx is cancelled. An empty
// addr is a no-op. Serve returns immediately; the server shuts down in the
// background when the run ends.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics endpoint failed", "addr", addr)
		}
	}()
}
