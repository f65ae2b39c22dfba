package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signins_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	SignUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Total number of sign-up attempts",
		},
		[]string{"result"},
	)

	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Total number of refresh-token rotations",
		},
		[]string{"result"},
	)

	SignOuts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_signouts_total",
			Help: "Total number of sign-outs",
		},
	)

	PrunedTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_tokens_pruned_total",
			Help: "Refresh-token rows removed by the pruning sweep",
		},
	)
)

// Outcome labels for the result dimension.
const (
	ResultOK     = "ok"
	ResultDenied = "denied"
	ResultError  = "error"
)
