package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Sink on a prometheus registry.
type Prometheus struct {
	jobsStarted    *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	priceFetches   *prometheus.CounterVec
	remindersTotal prometheus.Counter
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_jobs_started_total",
			Help: "Jobs dispatched by the orchestrator.",
		}, []string{"type"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_jobs_finished_total",
			Help: "Jobs finished, by terminal status.",
		}, []string{"type", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerd_job_duration_seconds",
			Help:    "Wall-clock job duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"type"}),
		priceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_price_fetches_total",
			Help: "Price provider calls by outcome.",
		}, []string{"outcome"}),
		remindersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_reminders_created_total",
			Help: "Month-end reminders created.",
		}),
	}
	reg.MustRegister(p.jobsStarted, p.jobsFinished, p.jobDuration, p.priceFetches, p.remindersTotal)
	return p
}

func (p *Prometheus) JobStarted(jobType string) {
	p.jobsStarted.WithLabelValues(jobType).Inc()
}

func (p *Prometheus) JobFinished(jobType, outcome string, d time.Duration) {
	p.jobsFinished.WithLabelValues(jobType, outcome).Inc()
	p.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (p *Prometheus) PriceFetch(outcome string) {
	p.priceFetches.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ReminderCreated() {
	p.remindersTotal.Inc()
}
