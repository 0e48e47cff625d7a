package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Identify outcomes recorded on IdentifyTotal.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeUnchanged        = "unchanged"
	OutcomeEmpty            = "empty"
	OutcomeError            = "error"
)

// Metrics provides observability for the contact module.
type Metrics struct {
	IdentifyTotal    *prometheus.CounterVec
	ContactsCreated  *prometheus.CounterVec
	MergesTotal      prometheus.Counter
	RepointedTotal   prometheus.Counter
	TxRetries        prometheus.Counter
	PublishFailures  prometheus.Counter
	IdentifyDuration prometheus.Histogram
}

// New registers the contact metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the contact metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentifyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_identify_total",
			Help: "Identify calls by outcome",
		}, []string{"outcome"}),
		ContactsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_contacts_created_total",
			Help: "Contacts inserted, by link precedence",
		}, []string{"precedence"}),
		MergesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_cluster_merges_total",
			Help: "Primaries demoted into an elder cluster",
		}),
		RepointedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_secondaries_repointed_total",
			Help: "Secondaries moved to a new primary during merges",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_identify_tx_retries_total",
			Help: "Identify transactions retried after a serialization conflict",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_event_publish_failures_total",
			Help: "Contact events that could not be published",
		}),
		IdentifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_identify_duration_seconds",
			Help:    "Duration of identify calls including lock and transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveIdentify records one identify call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIdentify(outcome string, start time.Time) {
	m.IdentifyTotal.WithLabelValues(outcome).Inc()
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCreated(precedence string) {
	m.ContactsCreated.WithLabelValues(precedence).Inc()
}

func (m *Metrics) AddMerge(repointed int64) {
	m.MergesTotal.Inc()
	m.RepointedTotal.Add(float64(repointed))
}
