// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pairwise"

var (
	ChoicesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "choices_created_total",
		Help:      "Choices created, by initial state.",
	}, []string{"state"})

	ActivationToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "choice_activation_toggles_total",
		Help:      "Choice activation state changes, by new state.",
	}, []string{"state"})

	ReassignmentsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "choice_reassignments_rejected_total",
		Help:      "Question reassignments ignored because the choice already has votes.",
	})

	PromptsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prompts_generated_total",
		Help:      "Prompt rows inserted by the pair generator.",
	})

	GenerationFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prompt_generation_fanout",
		Help:      "Prompt rows written per generation run.",
		Buckets:   prometheus.ExponentialBuckets(2, 2, 12),
	})

	CounterRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_recomputes_total",
		Help:      "Counter caches re-derived from row counts, by whether drift was corrected.",
	}, []string{"drift"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_enqueued_total",
		Help:      "Deferred tasks enqueued, by kind.",
	}, []string{"kind"})

	EnqueueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_enqueue_failures_total",
		Help:      "Deferred tasks that could not be enqueued, by kind.",
	}, []string{"kind"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_processed_total",
		Help:      "Deferred tasks finished, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// TaskQueueDepth exports the pending and dead list lengths, sampled on scrape.
// depth must be cheap and must not block for long.
func TaskQueueDepth(reg prometheus.Registerer, depth func(list string) float64) {
	for _, list := range []string{"pending", "dead"} {
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "task_queue_depth",
			Help:        "Tasks waiting in the Redis queue, by list.",
			ConstLabels: prometheus.Labels{"list": list},
		}, func() float64 { return depth(list) })
	}
}
