// Package metrics defines the application's Prometheus instruments. They
// register on the default registry at init so callers can increment them
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CSRFTokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webstarter_csrf_tokens_issued_total",
		Help: "Total number of CSRF tokens issued, including rotations.",
	})

	CSRFRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webstarter_csrf_rejections_total",
		Help: "Total number of requests rejected by the CSRF guard.",
	}, []string{"kind"})

	LoginSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webstarter_logins_success_total",
		Help: "Total number of successful logins.",
	})

	LoginFailureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webstarter_logins_failure_total",
		Help: "Total number of failed logins.",
	})

	UserRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webstarter_users_registered_total",
		Help: "Total number of users registered.",
	})

	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webstarter_uploads_total",
		Help: "Total number of accepted file uploads.",
	})
)
