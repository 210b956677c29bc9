package services

import "github.com/prometheus/client_golang/prometheus"

var (
	factsInsertedCounter prometheus.Counter
	factsMergedCounter   prometheus.Counter
	factsRejectedCounter prometheus.Counter
	sourceErrorsCounter  *prometheus.CounterVec
	refreshCounter       *prometheus.CounterVec
	refreshDuration      prometheus.Histogram
)

func init() {
	factsInsertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metamapa_facts_inserted_total",
		Help: "Total number of new facts persisted.",
	})
	factsMergedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metamapa_facts_merged_total",
		Help: "Total number of merge events that added at least one new source to an existing fact.",
	})
	factsRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metamapa_facts_rejected_total",
		Help: "Total number of raw facts skipped because they failed normalization.",
	})
	sourceErrorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metamapa_source_fetch_errors_total",
		Help: "Total number of failed source fetches.",
	}, []string{"source"})
	refreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metamapa_collection_refreshes_total",
		Help: "Total number of collection refreshes by result.",
	}, []string{"result"})
	refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "metamapa_collection_refresh_seconds",
		Help:    "Duration of collection refreshes.",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(factsInsertedCounter, factsMergedCounter, factsRejectedCounter,
		sourceErrorsCounter, refreshCounter, refreshDuration)
}
