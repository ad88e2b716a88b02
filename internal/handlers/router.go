package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"healthai/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// NewRouter собирает маршруты, middleware и CORS
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", h.Home).Methods(http.MethodGet)

	// Маршруты /api регистрируются на корневом роутере: у subrouter
	// несовпадение метода дает 404 вместо 405
	router.HandleFunc("/api/health-data", h.GetHealthData).Methods(http.MethodGet)
	router.HandleFunc("/api/predict", h.Predict).Methods(http.MethodPost)
	router.HandleFunc("/api/recommendations", h.GetRecommendations).Methods(http.MethodGet)
	router.HandleFunc("/api/train", h.Train).Methods(http.MethodPost)
	router.HandleFunc("/api/history", h.GetHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/alerts", h.GetAlerts).Methods(http.MethodGet)
	router.HandleFunc("/api/stream", h.Stream).Methods(http.MethodGet)

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	router.Handle("/prometheus", promhttp.Handler())

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})
	return c.Handler(h.requestMiddleware(router))
}

// unmatchedEndpoint метка метрик для запросов без маршрута (404, 405)
const unmatchedEndpoint = "unmatched"

// requestMiddleware проставляет request id, пишет лог и метрики запроса.
// Оборачивает роутер целиком, поэтому видит и запросы без маршрута.
func (h *Handler) requestMiddleware(router *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		endpoint := unmatchedEndpoint
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		router.ServeHTTP(rw, r)

		duration := time.Since(start)
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.status)).Inc()

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", duration),
		}
		switch {
		case rw.status >= 500:
			h.logger.Error("request", fields...)
		case rw.status >= 400:
			h.logger.Warn("request", fields...)
		default:
			h.logger.Debug("request", fields...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack нужен для websocket upgrade
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
