package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_remote_requests_total",
			Help: "Requests sent to the back-office API",
		},
		[]string{"method", "resource", "status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pos_remote_request_duration_seconds",
			Help:    "Duration of back-office API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_submissions_total",
			Help: "Cart submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SubmittedLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_submitted_lines_total",
			Help: "Line items acknowledged by the back-office API",
		},
		[]string{"kind"},
	)

	SnapshotRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_snapshot_refresh_total",
			Help: "Entity store refreshes by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)
)

// Register adds every collector to reg. Collectors work unregistered, so tests
// never need to call this.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		RemoteRequestsTotal,
		RemoteRequestDuration,
		SubmissionsTotal,
		SubmittedLinesTotal,
		SnapshotRefreshTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
