package oauth

import "github.com/prometheus/client_golang/prometheus"

var (
	exchangeSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acconnect_oauth_exchange_success_total",
			Help: "Successful OAuth password-grant exchanges",
		},
		[]string{"provider"},
	)
	exchangeFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acconnect_oauth_exchange_failure_total",
			Help: "Failed OAuth password-grant exchanges",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acconnect_oauth_token_valid",
			Help: "OAuth access token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the shared OAuth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		exchangeSuccess,
		exchangeFailure,
		tokenValid,
	}
}
