package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	interviewRequestsTotal  *prometheus.CounterVec
	interviewLatencySeconds *prometheus.HistogramVec
	interviewErrorsTotal    *prometheus.CounterVec
	answersSubmittedTotal   *prometheus.CounterVec
	evaluationEventsTotal   *prometheus.CounterVec
	streamClientsActive     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the interview API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		interviewRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_requests_total",
			Help: "Total number of interview API requests served.",
		}, []string{"method", "route", "status"})

		interviewLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interview_latency_seconds",
			Help:    "Latency distribution for interview API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"})

		interviewErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_errors_total",
			Help: "Total number of error responses returned by interview endpoints.",
		}, []string{"method", "route", "status"})

		answersSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_answers_submitted_total",
			Help: "Answers persisted, labelled by evaluation status.",
		}, []string{"status"})

		evaluationEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_evaluation_events_total",
			Help: "Evaluation events delivered to local subscribers, labelled by origin.",
		}, []string{"origin"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interview_stream_clients_active",
			Help: "Number of websocket clients following session evaluations.",
		})

		prometheus.MustRegister(
			interviewRequestsTotal,
			interviewLatencySeconds,
			interviewErrorsTotal,
			answersSubmittedTotal,
			evaluationEventsTotal,
			streamClientsActive,
		)
	})
}

// InterviewRequests exposes the counter for interview requests.
func InterviewRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return interviewRequestsTotal
}

// InterviewLatency exposes the latency histogram for interview requests.
func InterviewLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return interviewLatencySeconds
}

// InterviewErrors exposes the counter for interview error responses.
func InterviewErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return interviewErrorsTotal
}

// AnswersSubmitted counts persisted answers by evaluation status.
func AnswersSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return answersSubmittedTotal
}

// EvaluationEvents counts delivered evaluation events by origin (local or remote).
func EvaluationEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationEventsTotal
}

// StreamClientsActive tracks connected websocket clients.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}
