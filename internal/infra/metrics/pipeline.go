package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(fallbacksTotal, retrievalMatches, citationsDropped) }

var (
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_fallbacks_total",
			Help: "Times a component used its deterministic fallback path.",
		},
		[]string{"component"}, // synthesizer | answerer | retriever
	)

	retrievalMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_retrieval_matches",
			Help:    "Number of related incidents returned per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	citationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_citations_dropped_total",
			Help: "Model citations dropped because they were not verbatim evidence.",
		},
	)
)

func IncFallback(component string) {
	fallbacksTotal.WithLabelValues(norm(component)).Inc()
}

func ObserveRetrieval(n int) {
	retrievalMatches.Observe(float64(n))
}

func AddCitationsDropped(n int) {
	if n > 0 {
		citationsDropped.Add(float64(n))
	}
}
