package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ReadingsGenerated сгенерированные показания
	ReadingsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_generated_total",
			Help: "Total number of simulated readings",
		},
	)

	// AnomaliesDetected обнаруженные аномалии
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"source"},
	)

	// ConfidenceScore распределение confidence для /api/predict
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "confidence_score",
			Help:    "Distribution of confidence scores returned by predictions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// TrainingTotal обучения детектора
	TrainingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_training_total",
			Help: "Total number of detector training runs",
		},
		[]string{"status"},
	)

	// TrainingDuration длительность обучения
	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detector_training_duration_seconds",
			Help:    "Detector training latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// TrainingSamples размер последней обучающей выборки
	TrainingSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detector_training_samples",
			Help: "Number of samples used by the current detector model",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// StreamClients подключенные websocket клиенты
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected stream clients",
		},
	)
)
