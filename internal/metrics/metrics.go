// Package metrics exposes Prometheus collectors for the parsing service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	catalogueEntriesTotal      *prometheus.CounterVec
	albumsParsedTotal          *prometheus.CounterVec
	albumParseFailuresTotal    *prometheus.CounterVec
	publicationsTotal          *prometheus.CounterVec
	publicationChunks          *prometheus.HistogramVec
	jobRunsTotal               *prometheus.CounterVec
	jobDurationSeconds         *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_listing_pages_total",
				Help: "Total listing pages indexed, labeled by distributor.",
			},
			[]string{"distributor"},
		)

		catalogueEntriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_catalogue_entries_total",
				Help: "Total catalogue entries upserted, labeled by distributor and status.",
			},
			[]string{"distributor", "status"},
		)

		albumsParsedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_albums_parsed_total",
				Help: "Total albums parsed into the outbox, labeled by distributor.",
			},
			[]string{"distributor"},
		)

		albumParseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_album_parse_failures_total",
				Help: "Total per-album failures skipped during detail parsing, labeled by distributor and stage.",
			},
			[]string{"distributor", "stage"},
		)

		publicationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_publications_total",
				Help: "Total session publication attempts, labeled by distributor and outcome.",
			},
			[]string{"distributor", "outcome"},
		)

		publicationChunks = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parser_publication_chunks",
				Help:    "Histogram of chunk counts per published session.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"distributor"},
		)

		jobRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parser_job_runs_total",
				Help: "Total job invocations, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
		)

		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parser_job_duration_seconds",
				Help:    "Histogram of job run durations, labeled by job.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"job"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListingPage counts one indexed listing page.
func ObserveListingPage(distributor string) {
	listingPagesTotal.WithLabelValues(distributor).Inc()
}

// ObserveCatalogueEntry counts one upserted catalogue entry.
func ObserveCatalogueEntry(distributor, status string) {
	catalogueEntriesTotal.WithLabelValues(distributor, status).Inc()
}

// ObserveAlbumParsed counts one album staged in the outbox.
func ObserveAlbumParsed(distributor string) {
	albumsParsedTotal.WithLabelValues(distributor).Inc()
}

// ObserveAlbumParseFailure counts one skipped album, labeled by the stage
// that failed.
func ObserveAlbumParseFailure(distributor, stage string) {
	albumParseFailuresTotal.WithLabelValues(distributor, stage).Inc()
}

// ObservePublication counts one session publish attempt.
func ObservePublication(distributor, outcome string, chunks int) {
	publicationsTotal.WithLabelValues(distributor, outcome).Inc()
	if outcome == "success" {
		publicationChunks.WithLabelValues(distributor).Observe(float64(chunks))
	}
}

// ObserveJobRun counts one job invocation and its duration.
func ObserveJobRun(job, outcome string, duration time.Duration) {
	jobRunsTotal.WithLabelValues(job, outcome).Inc()
	jobDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
