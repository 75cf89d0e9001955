// Package metrics exposes the engine's prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AssignmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_assignments_created_total",
		Help: "First-time daily assignments written to the remote store.",
	})

	AssignmentsForced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_assignments_forced_total",
		Help: "User-initiated replacements of the day's assignment.",
	})

	CacheFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_cache_fallbacks_total",
		Help: "Reads served from the local cache because the remote store was unreachable.",
	})

	ReconcilerRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_reconciler_runs_total",
		Help: "Reconciler poll iterations.",
	})

	ReconcilerRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_reconciler_repairs_total",
		Help: "Reconciler iterations that honored a signal flag and refreshed the cache.",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotidian_store_errors_total",
		Help: "Remote store failures by operation.",
	}, []string{"op"})

	VisibilityRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotidian_visibility_retries_total",
		Help: "Bounded retries absorbing read-after-write visibility races.",
	})
)

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
