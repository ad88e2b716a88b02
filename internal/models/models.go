package models

import "time"

// TimestampLayout формат времени в ответах API (ISO-8601 без зоны, микросекунды)
const TimestampLayout = "2006-01-02T15:04:05.000000"

// FormatTimestamp форматирует время для JSON ответов
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ActivityLevel уровень физической активности
type ActivityLevel string

const (
	ActivityLow      ActivityLevel = "Low"
	ActivityModerate ActivityLevel = "Moderate"
	ActivityHigh     ActivityLevel = "High"
)

// ActivityLevels все допустимые уровни активности
var ActivityLevels = []ActivityLevel{ActivityLow, ActivityModerate, ActivityHigh}

// Reading одно симулированное показание носимого устройства
type Reading struct {
	HeartRate     int           `json:"heart_rate"`
	BloodOxygen   int           `json:"blood_oxygen"`
	SleepHours    float64       `json:"sleep_hours"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	Timestamp     time.Time     `json:"-"`
}

// ReadingView показание в формате ответа API
type ReadingView struct {
	HeartRate     int           `json:"heart_rate"`
	BloodOxygen   int           `json:"blood_oxygen"`
	SleepHours    float64       `json:"sleep_hours"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	Timestamp     string        `json:"timestamp"`
}

// View преобразует показание в формат ответа
func (r Reading) View() ReadingView {
	return ReadingView{
		HeartRate:     r.HeartRate,
		BloodOxygen:   r.BloodOxygen,
		SleepHours:    r.SleepHours,
		ActivityLevel: r.ActivityLevel,
		Timestamp:     FormatTimestamp(r.Timestamp),
	}
}

// Статусы классификации
const (
	StatusNormal = "Normal"
	StatusAlert  = "Alert"

	PredictionNormal  = "Normal"
	PredictionAnomaly = "Anomaly"
)

// HealthDataResponse ответ GET /api/health-data
type HealthDataResponse struct {
	HeartRate     int           `json:"heart_rate"`
	BloodOxygen   int           `json:"blood_oxygen"`
	SleepHours    float64       `json:"sleep_hours"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	Status        string        `json:"status"`
	Anomaly       bool          `json:"anomaly"`
	Timestamp     string        `json:"timestamp"`
}

// PredictRequest тело POST /api/predict; отсутствующие поля заменяются значениями по умолчанию
type PredictRequest struct {
	HeartRate   *float64 `json:"heart_rate"`
	BloodOxygen *float64 `json:"blood_oxygen"`
}

// Значения по умолчанию для /api/predict
const (
	DefaultHeartRate   = 70.0
	DefaultBloodOxygen = 98.0
)

// PredictResponse ответ POST /api/predict
type PredictResponse struct {
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	HeartRate   float64 `json:"heart_rate"`
	BloodOxygen float64 `json:"blood_oxygen"`
	Timestamp   string  `json:"timestamp"`
}

// TrainResponse ответ POST /api/train
type TrainResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Alert обнаруженная аномалия, сохраняемая в кэше
type Alert struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	HeartRate   float64   `json:"heart_rate"`
	BloodOxygen float64   `json:"blood_oxygen"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// Источники алертов
const (
	AlertSourceHealthData = "health-data"
	AlertSourcePredict    = "predict"
	AlertSourceStream     = "stream"
)

// Recommendations статические рекомендации
var Recommendations = map[string][]string{
	"exercise": {
		"30 minutes of moderate cardio daily",
		"Include strength training 2-3 times per week",
		"Try yoga or stretching for flexibility",
	},
	"sleep": {
		"Maintain consistent sleep schedule",
		"Aim for 7-9 hours of quality sleep",
		"Avoid screens 1 hour before bedtime",
	},
	"nutrition": {
		"Stay hydrated with 8 glasses of water daily",
		"Include more omega-3 rich foods",
		"Reduce processed sugar intake",
	},
}
