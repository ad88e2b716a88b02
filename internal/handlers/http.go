package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"healthai/internal/analytics"
	"healthai/internal/generator"
	"healthai/internal/metrics"
	"healthai/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Размер выборки для POST /api/train
	trainingSamples = 1000

	defaultHistoryDays = 7
	maxHistoryDays     = 30

	defaultAlertLimit = 10
	maxAlertLimit     = 100

	alertStoreTimeout = 2 * time.Second
)

// AlertStore кэш последних алертов
type AlertStore interface {
	StoreAlert(ctx context.Context, alert models.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Handler обработчик HTTP запросов
type Handler struct {
	detector       *analytics.Detector
	generator      *generator.Generator
	alerts         AlertStore
	logger         *zap.Logger
	streamInterval time.Duration
}

// NewHandler создает новый обработчик. alerts может быть nil, если кэш отключен.
func NewHandler(detector *analytics.Detector, gen *generator.Generator, alerts AlertStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		detector:       detector,
		generator:      gen,
		alerts:         alerts,
		logger:         logger,
		streamInterval: 5 * time.Second,
	}
}

// WithStreamInterval задает период отправки в /api/stream
func (h *Handler) WithStreamInterval(d time.Duration) *Handler {
	if d > 0 {
		h.streamInterval = d
	}
	return h
}

// Home обрабатывает GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "HealthAI API is running",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health_data":     "/api/health-data",
			"predict":         "/api/predict",
			"recommendations": "/api/recommendations",
		},
	})
}

// GetHealthData обрабатывает GET /api/health-data
func (h *Handler) GetHealthData(w http.ResponseWriter, r *http.Request) {
	resp, err := h.classifiedReading(models.AlertSourceHealthData)
	if err != nil {
		h.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// classifiedReading генерирует и классифицирует одно показание
func (h *Handler) classifiedReading(source string) (models.HealthDataResponse, error) {
	reading := h.generator.Reading()
	metrics.ReadingsGenerated.Inc()

	anomaly, _, err := h.classify(source, float64(reading.HeartRate), float64(reading.BloodOxygen))
	if err != nil {
		return models.HealthDataResponse{}, err
	}

	status := models.StatusNormal
	if anomaly {
		status = models.StatusAlert
	}

	return models.HealthDataResponse{
		HeartRate:     reading.HeartRate,
		BloodOxygen:   reading.BloodOxygen,
		SleepHours:    reading.SleepHours,
		ActivityLevel: reading.ActivityLevel,
		Status:        status,
		Anomaly:       anomaly,
		Timestamp:     models.FormatTimestamp(reading.Timestamp),
	}, nil
}

// Predict обрабатывает POST /api/predict
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	heartRate := models.DefaultHeartRate
	if req.HeartRate != nil {
		heartRate = *req.HeartRate
	}
	bloodOxygen := models.DefaultBloodOxygen
	if req.BloodOxygen != nil {
		bloodOxygen = *req.BloodOxygen
	}

	anomaly, confidence, err := h.classify(models.AlertSourcePredict, heartRate, bloodOxygen)
	if err != nil {
		h.writeDetectorError(w, err)
		return
	}
	metrics.ConfidenceScore.Observe(confidence)

	prediction := models.PredictionNormal
	if anomaly {
		prediction = models.PredictionAnomaly
	}

	writeJSON(w, http.StatusOK, models.PredictResponse{
		Prediction:  prediction,
		Confidence:  confidence,
		HeartRate:   heartRate,
		BloodOxygen: bloodOxygen,
		Timestamp:   models.FormatTimestamp(time.Now()),
	})
}

// GetRecommendations обрабатывает GET /api/recommendations
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Recommendations)
}

// Train обрабатывает POST /api/train
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	samples := h.generator.TrainingSet(trainingSamples)
	metrics.ReadingsGenerated.Add(float64(len(samples)))

	if err := h.detector.Train(samples); err != nil {
		h.logger.Error("training failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.TrainResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, models.TrainResponse{
		Status:    "success",
		Message:   fmt.Sprintf("Model trained with %d samples", trainingSamples),
		Timestamp: models.FormatTimestamp(time.Now()),
	})
}

// GetHistory обрабатывает GET /api/history?days=N
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultHistoryDays, 1, maxHistoryDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	readings := h.generator.History(days)
	metrics.ReadingsGenerated.Add(float64(len(readings)))

	views := make([]models.ReadingView, len(readings))
	for i, reading := range readings {
		views[i] = reading.View()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":     days,
		"count":    len(views),
		"readings": views,
	})
}

// GetAlerts обрабатывает GET /api/alerts?limit=N
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultAlertLimit, 1, maxAlertLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.alerts == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
			"count":   0,
			"alerts":  []models.Alert{},
		})
		return
	}

	alerts, err := h.alerts.RecentAlerts(r.Context(), limit)
	if err != nil {
		metrics.RedisOperations.WithLabelValues("get_alerts", "error").Inc()
		h.logger.Error("failed to load alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve alerts"})
		return
	}
	metrics.RedisOperations.WithLabelValues("get_alerts", "success").Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	trained := h.detector.Trained()

	status := "healthy"
	httpStatus := http.StatusOK

	body := map[string]interface{}{
		"detector_trained": trained,
		"timestamp":        time.Now(),
	}

	if !trained {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.alerts != nil {
		redisOK := h.alerts.Ping(r.Context()) == nil
		body["redis"] = redisOK
		if !redisOK {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	body["status"] = status
	writeJSON(w, httpStatus, body)
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"detector":  h.detector.Stats(),
		"timestamp": time.Now(),
	}
	if h.alerts != nil {
		body["redis"] = h.alerts.GetStats()
	}
	writeJSON(w, http.StatusOK, body)
}

// classify вызывает детектор и регистрирует аномалию
func (h *Handler) classify(source string, heartRate, bloodOxygen float64) (bool, float64, error) {
	anomaly, confidence, err := h.detector.Classify(heartRate, bloodOxygen)
	if err != nil {
		return false, 0, err
	}

	if anomaly {
		metrics.AnomaliesDetected.WithLabelValues(source).Inc()
		h.logger.Warn("anomaly detected",
			zap.String("source", source),
			zap.Float64("heart_rate", heartRate),
			zap.Float64("blood_oxygen", bloodOxygen),
			zap.Float64("confidence", confidence),
		)
		h.recordAlert(models.Alert{
			ID:          uuid.NewString(),
			Source:      source,
			HeartRate:   heartRate,
			BloodOxygen: bloodOxygen,
			Confidence:  confidence,
			Timestamp:   time.Now(),
		})
	}
	return anomaly, confidence, nil
}

// recordAlert сохраняет алерт асинхронно, не блокируя ответ
func (h *Handler) recordAlert(alert models.Alert) {
	if h.alerts == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertStoreTimeout)
		defer cancel()

		if err := h.alerts.StoreAlert(ctx, alert); err != nil {
			metrics.RedisOperations.WithLabelValues("store_alert", "error").Inc()
			h.logger.Error("failed to store alert", zap.String("alert_id", alert.ID), zap.Error(err))
			return
		}
		metrics.RedisOperations.WithLabelValues("store_alert", "success").Inc()
	}()
}

func (h *Handler) writeDetectorError(w http.ResponseWriter, err error) {
	if errors.Is(err, analytics.ErrNotTrained) {
		h.logger.Error("detector used before training", zap.Error(err))
	} else {
		h.logger.Error("classification failed", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// intParam читает целый query-параметр в диапазоне [lo, hi]
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d]", name, lo, hi)
	}
	return v, nil
}
