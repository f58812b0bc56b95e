package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry core.
type Metrics struct {
	ApplicationsSubmitted prometheus.Counter
	DecisionsRecorded     *prometheus.CounterVec
	Certifications        *prometheus.CounterVec
	LedgerConfirmPolls    prometheus.Counter
	Transfers             *prometheus.CounterVec
	DisputesRaised        prometheus.Counter
	CasesClosed           prometheus.Counter
	VerifyRequests        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ApplicationsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrier_applications_submitted_total",
			Help: "Total number of land-title applications submitted",
		}),
		DecisionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "terrier_decisions_recorded_total",
			Help: "Total number of registrar decisions recorded",
		}, []string{"decision"}),
		Certifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "terrier_certifications_total",
			Help: "Total number of certification attempts by outcome",
		}, []string{"result"}),
		LedgerConfirmPolls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrier_ledger_confirm_polls_total",
			Help: "Total number of ledger confirmation poll iterations",
		}),
		Transfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "terrier_property_transfers_total",
			Help: "Total number of ownership transfer attempts by outcome",
		}, []string{"result"}),
		DisputesRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrier_disputes_raised_total",
			Help: "Total number of disputes raised against properties",
		}),
		CasesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrier_cases_closed_total",
			Help: "Total number of court cases closed",
		}),
		VerifyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "terrier_verify_requests_total",
			Help: "Total number of public verification queries by validity",
		}, []string{"valid"}),
	}
}
