package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"healthai/internal/analytics"
	"healthai/internal/cache"
	"healthai/internal/generator"
	"healthai/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestHandler(t *testing.T, alerts AlertStore) *Handler {
	t.Helper()
	d := analytics.NewDetector(analytics.DefaultConfig(), zap.NewNop())
	require.NoError(t, d.Bootstrap())
	return NewHandler(d, generator.NewSeeded(1), alerts, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHome(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message   string            `json:"message"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	decode(t, w, &body)
	assert.Equal(t, "HealthAI API is running", body.Message)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, map[string]string{
		"health_data":     "/api/health-data",
		"predict":         "/api/predict",
		"recommendations": "/api/recommendations",
	}, body.Endpoints)
}

func TestGetHealthData_StatusMatchesAnomaly(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	for i := 0; i < 100; i++ {
		w := do(t, router, http.MethodGet, "/api/health-data", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.HealthDataResponse
		decode(t, w, &resp)

		if resp.Anomaly {
			assert.Equal(t, models.StatusAlert, resp.Status)
		} else {
			assert.Equal(t, models.StatusNormal, resp.Status)
		}
		assert.Contains(t, models.ActivityLevels, resp.ActivityLevel)
		_, err := time.Parse(models.TimestampLayout, resp.Timestamp)
		assert.NoError(t, err)
	}
}

func TestPredict_DefaultsOnEmptyBody(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	for _, body := range []string{"", "{}", `{"heart_rate":null}`} {
		w := do(t, router, http.MethodPost, "/api/predict", body)
		require.Equal(t, http.StatusOK, w.Code, "body %q", body)

		var resp models.PredictResponse
		decode(t, w, &resp)
		assert.Equal(t, 70.0, resp.HeartRate)
		assert.Equal(t, 98.0, resp.BloodOxygen)
	}
}

func TestPredict_NormalReading(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":72,"blood_oxygen":98}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PredictResponse
	decode(t, w, &resp)
	assert.Equal(t, models.PredictionNormal, resp.Prediction)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 100.0)
	assert.Equal(t, 72.0, resp.HeartRate)
}

func TestPredict_AnomalousReading(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":75,"blood_oxygen":60}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PredictResponse
	decode(t, w, &resp)
	assert.Equal(t, models.PredictionAnomaly, resp.Prediction)
}

func TestPredict_LowHeartRateLowOxygen(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":45,"blood_oxygen":90}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PredictResponse
	decode(t, w, &resp)
	assert.Equal(t, models.PredictionAnomaly, resp.Prediction)
	assert.Equal(t, 45.0, resp.HeartRate)
	assert.Equal(t, 90.0, resp.BloodOxygen)

	w = do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":72,"blood_oxygen":98}`)
	require.Equal(t, http.StatusOK, w.Code)
	var normal models.PredictResponse
	decode(t, w, &normal)
	assert.Less(t, resp.Confidence, normal.Confidence)
}

func TestPredict_InvalidJSON(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":"fast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/predict", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/predict"},
		{http.MethodGet, "/api/train"},
		{http.MethodPost, "/api/health-data"},
		{http.MethodPost, "/api/history"},
		{http.MethodPost, "/"},
	}
	for _, tt := range tests {
		w := do(t, router, tt.method, tt.target, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tt.method, tt.target)
	}

	w := do(t, router, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnmatchedRequestsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := analytics.NewDetector(analytics.DefaultConfig(), zap.NewNop())
	require.NoError(t, d.Bootstrap())
	router := NewRouter(NewHandler(d, generator.NewSeeded(1), nil, zap.New(core)), nil)

	w := do(t, router, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(t, router, http.MethodGet, "/api/predict", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
	assert.EqualValues(t, http.StatusMethodNotAllowed, entries[1].ContextMap()["status"])
}

func TestUntrainedDetectorIsServerError(t *testing.T) {
	d := analytics.NewDetector(analytics.DefaultConfig(), nil)
	router := NewRouter(NewHandler(d, generator.NewSeeded(1), nil, nil), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), analytics.ErrNotTrained.Error())

	w = do(t, router, http.MethodGet, "/api/health-data", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Обучение переводит детектор в рабочее состояние
	w = do(t, router, http.MethodPost, "/api/train", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/api/predict", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRecommendations(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodGet, "/api/recommendations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]string
	decode(t, w, &body)
	assert.Equal(t, models.Recommendations, body)
	assert.Equal(t, "Aim for 7-9 hours of quality sleep", body["sleep"][1])
}

func TestTrain_Success(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodPost, "/api/train", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TrainResponse
	decode(t, w, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Contains(t, resp.Message, "1000")
	assert.NotEmpty(t, resp.Timestamp)
}

type brokenModel struct{}

func (brokenModel) Fit([][]float64) error   { return errors.New("fit exploded") }
func (brokenModel) Score([]float64) float64 { return 0 }
func (brokenModel) Predict([]float64) bool  { return false }

func TestTrain_Failure(t *testing.T) {
	d := analytics.NewDetectorWithModel(analytics.DefaultConfig(),
		func(analytics.Config) analytics.Model { return brokenModel{} }, nil)
	router := NewRouter(NewHandler(d, generator.NewSeeded(1), nil, nil), nil)

	w := do(t, router, http.MethodPost, "/api/train", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp models.TrainResponse
	decode(t, w, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "fit exploded")
}

func TestGetHistory(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Days     int                  `json:"days"`
		Count    int                  `json:"count"`
		Readings []models.ReadingView `json:"readings"`
	}
	decode(t, w, &body)
	assert.Equal(t, 7, body.Days)
	assert.Equal(t, 168, body.Count)
	assert.Len(t, body.Readings, 168)

	w = do(t, router, http.MethodGet, "/api/history?days=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Len(t, body.Readings, 48)

	for _, q := range []string{"days=abc", "days=0", "days=31"} {
		w = do(t, router, http.MethodGet, "/api/history?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetAlerts_Disabled(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false,"count":0,"alerts":[]}`, w.Body.String())
}

func TestAnomalyIsCachedAsAlert(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := cache.NewRedisCacheFromClient(client, time.Hour)

	router := NewRouter(newTestHandler(t, store), nil)

	w := do(t, router, http.MethodPost, "/api/predict", `{"heart_rate":75,"blood_oxygen":60}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Enabled bool           `json:"enabled"`
		Count   int            `json:"count"`
		Alerts  []models.Alert `json:"alerts"`
	}
	require.Eventually(t, func() bool {
		w := do(t, router, http.MethodGet, "/api/alerts?limit=5", "")
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			return false
		}
		return body.Count == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, body.Enabled)
	assert.Equal(t, models.AlertSourcePredict, body.Alerts[0].Source)
	assert.Equal(t, 60.0, body.Alerts[0].BloodOxygen)

	w = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":true`)

	w = do(t, router, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_conns"`)
}

func TestHealthCheck_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	router := NewRouter(newTestHandler(t, cache.NewRedisCacheFromClient(client, time.Hour)), nil)

	mr.Close()

	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestGetStats(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	w := do(t, router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Detector map[string]interface{} `json:"detector"`
	}
	decode(t, w, &body)
	assert.Equal(t, true, body.Detector["trained"])
	assert.Equal(t, 550.0, body.Detector["samples"])
	assert.NotContains(t, w.Body.String(), `"redis"`)
}

func TestCORSAndRequestID(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), []string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRequestID_Propagated(t *testing.T) {
	router := NewRouter(newTestHandler(t, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestStream_PushesClassifiedReadings(t *testing.T) {
	h := newTestHandler(t, nil).WithStreamInterval(20 * time.Millisecond)
	srv := httptest.NewServer(NewRouter(h, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var resp models.HealthDataResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, resp.Anomaly, resp.Status == models.StatusAlert)
		assert.Contains(t, models.ActivityLevels, resp.ActivityLevel)
	}
}

func TestStream_UntrainedDetectorClosesWithServerError(t *testing.T) {
	d := analytics.NewDetector(analytics.DefaultConfig(), nil)
	h := NewHandler(d, generator.NewSeeded(1), nil, nil).WithStreamInterval(20 * time.Millisecond)
	srv := httptest.NewServer(NewRouter(h, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, analytics.ErrNotTrained.Error(), closeErr.Text)
}
