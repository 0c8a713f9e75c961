// Package metrics exposes Prometheus collectors for ingestion and search.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/watcher"
)

const namespace = "facetrail"

// Recorder owns every collector. It implements the observer interfaces of
// the job manager, ingestor, search engine and watcher.
type Recorder struct {
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	facesDetected      *prometheus.CounterVec
	ingestDuration     *prometheus.HistogramVec
	ingestErrors       *prometheus.CounterVec
	searchesTotal      *prometheus.CounterVec
	searchDuration     *prometheus.HistogramVec
	searchResults      prometheus.Histogram
	watcherFiles       *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec

	mediaItems  *prometheus.GaugeVec
	corpusFaces prometheus.Gauge
	jobsByState *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a final state",
		}, []string{"kind", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job start to final state",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"kind", "state"}),
		facesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_detected_total",
			Help:      "Faces persisted to the corpus",
		}, []string{"media_type"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_processing_duration_seconds",
			Help:      "Time to ingest one media item",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"media_type", "status"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_processing_errors_total",
			Help:      "Media items that failed ingestion",
		}, []string{"media_type", "kind"}),
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Similarity searches by cache result",
		}, []string{"cache"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Similarity search latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"cache"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Matches returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		watcherFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_files_total",
			Help:      "Files seen by the folder watcher by outcome",
		}, []string{"outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path", "status"}),
		mediaItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_items",
			Help:      "Registered media items by status",
		}, []string{"status"}),
		corpusFaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_faces",
			Help:      "Face records in the corpus",
		}),
		jobsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs by current state",
		}, []string{"state"}),
	}

	reg.MustRegister(
		r.jobsTotal, r.jobDuration,
		r.facesDetected, r.ingestDuration, r.ingestErrors,
		r.searchesTotal, r.searchDuration, r.searchResults,
		r.watcherFiles,
		r.httpRequestsTotal, r.httpRequestLatency,
		r.mediaItems, r.corpusFaces, r.jobsByState,
	)
	return r
}

func (r *Recorder) ObserveJob(kind domain.JobKind, state domain.JobState, duration time.Duration) {
	r.jobsTotal.WithLabelValues(string(kind), string(state)).Inc()
	if duration > 0 {
		r.jobDuration.WithLabelValues(string(kind), string(state)).Observe(duration.Seconds())
	}
}

func (r *Recorder) ObserveIngest(mediaType domain.MediaType, faces int, duration time.Duration, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
		r.ingestErrors.WithLabelValues(string(mediaType), errorKind(err)).Inc()
	}
	r.ingestDuration.WithLabelValues(string(mediaType), status).Observe(duration.Seconds())
	if faces > 0 {
		r.facesDetected.WithLabelValues(string(mediaType)).Add(float64(faces))
	}
}

func (r *Recorder) ObserveSearch(cacheHit bool, duration time.Duration, results int) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	r.searchesTotal.WithLabelValues(label).Inc()
	r.searchDuration.WithLabelValues(label).Observe(duration.Seconds())
	r.searchResults.Observe(float64(results))
}

func (r *Recorder) ObserveWatch(outcome watcher.Outcome) {
	r.watcherFiles.WithLabelValues(string(outcome)).Inc()
}

// SetStats refreshes the corpus gauges from a stats snapshot.
func (r *Recorder) SetStats(s *domain.Stats) {
	r.mediaItems.Reset()
	for status, n := range s.MediaByStatus {
		r.mediaItems.WithLabelValues(string(status)).Set(float64(n))
	}
	r.jobsByState.Reset()
	for state, n := range s.JobsByState {
		r.jobsByState.WithLabelValues(string(state)).Set(float64(n))
	}
	r.corpusFaces.Set(float64(s.TotalFaces))
}

func errorKind(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Kind)
	}
	return string(domain.KindInternal)
}
