package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ballotRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardinal_ballot_requests_total",
		Help: "Total ballot submission requests received",
	}, []string{"status"})

	ballotProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardinal_ballot_processed_total",
		Help: "Total ballots processed by the worker",
	})

	ballotDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardinal_ballot_duplicates_total",
		Help: "Queued ballots dropped by the worker because the voter already submitted",
	})

	ballotProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardinal_ballot_processing_duration_seconds",
		Help:    "Time to process one ballot in the worker",
		Buckets: prometheus.DefBuckets,
	})

	unknownRatingEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardinal_result_unknown_entries_total",
		Help: "Rating entries referencing options the poll does not have, seen while computing results",
	})
)

func ObserveBallotRequest(status string) {
	ballotRequestsTotal.WithLabelValues(status).Inc()
}

func IncBallotProcessed() {
	ballotProcessedTotal.Inc()
}

func IncBallotDuplicate() {
	ballotDuplicatesTotal.Inc()
}

func ObserveProcessingDuration(seconds float64) {
	ballotProcessingDuration.Observe(seconds)
}

func AddUnknownRatingEntries(n int64) {
	if n > 0 {
		unknownRatingEntries.Add(float64(n))
	}
}
