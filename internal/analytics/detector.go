package analytics

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"healthai/internal/metrics"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Ошибки детектора
var (
	ErrNotTrained       = errors.New("model not trained yet")
	ErrEmptyTrainingSet = errors.New("training set is empty")
	ErrFeatureCount     = errors.New("each sample must have exactly 2 features")
	ErrNonFinite        = errors.New("training set contains non-finite values")
)

// Число признаков: пульс и сатурация
const numFeatures = 2

// Config параметры детектора
type Config struct {
	Trees         int
	Contamination float64
	Seed          uint64
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Trees:         100,
		Contamination: 0.1,
		Seed:          42,
	}
}

// ModelFactory создает новую необученную модель
type ModelFactory func(cfg Config) Model

// IsolationForestFactory фабрика по умолчанию
func IsolationForestFactory(cfg Config) Model {
	return NewIsolationForest(cfg.Trees, cfg.Contamination, cfg.Seed)
}

// fitted неизменяемый снимок обученного состояния
type fitted struct {
	scaler    *StandardScaler
	model     Model
	samples   int
	trainedAt time.Time
}

// Detector классификатор аномалий по (пульс, сатурация).
// Переобучение строит новое состояние и атомарно подменяет указатель,
// читатели не блокируются.
type Detector struct {
	cfg     Config
	factory ModelFactory
	logger  *zap.Logger

	trainMu sync.Mutex
	state   atomic.Pointer[fitted]
}

// NewDetector создает необученный детектор
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	return NewDetectorWithModel(cfg, IsolationForestFactory, logger)
}

// NewDetectorWithModel создает детектор с произвольной моделью
func NewDetectorWithModel(cfg Config, factory ModelFactory, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
}

// Bootstrap обучает детектор на синтетической выборке
func (d *Detector) Bootstrap() error {
	if err := d.Train(BootstrapSamples(d.cfg.Seed)); err != nil {
		return fmt.Errorf("bootstrap training failed: %w", err)
	}
	return nil
}

// BootstrapSamples строит 550 строк: 500 нормальных и 50 аномальных
func BootstrapSamples(seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	normal := func(mean, sd float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = mean + sd*rng.NormFloat64()
		}
		return out
	}

	heartRates := normal(75, 10, 500)
	oxygen := normal(97, 2, 500)

	heartRates = append(heartRates, normal(110, 5, 25)...)
	heartRates = append(heartRates, normal(45, 5, 25)...)
	oxygen = append(oxygen, normal(88, 3, 50)...)

	samples := make([][]float64, len(heartRates))
	for i := range samples {
		samples[i] = []float64{heartRates[i], oxygen[i]}
	}
	return samples
}

// Train полностью заменяет scaler и модель. При ошибке прежнее состояние сохраняется.
func (d *Detector) Train(samples [][]float64) error {
	start := time.Now()

	if err := validate(samples); err != nil {
		metrics.TrainingTotal.WithLabelValues("error").Inc()
		return err
	}

	d.trainMu.Lock()
	defer d.trainMu.Unlock()

	scaler := FitScaler(samples)
	model := d.factory(d.cfg)
	if err := model.Fit(scaler.TransformAll(samples)); err != nil {
		metrics.TrainingTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fit model: %w", err)
	}

	d.state.Store(&fitted{
		scaler:    scaler,
		model:     model,
		samples:   len(samples),
		trainedAt: time.Now(),
	})

	metrics.TrainingTotal.WithLabelValues("success").Inc()
	metrics.TrainingSamples.Set(float64(len(samples)))
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	d.logger.Info("model trained",
		zap.Int("samples", len(samples)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func validate(samples [][]float64) error {
	if len(samples) == 0 {
		return ErrEmptyTrainingSet
	}
	for i, row := range samples {
		if len(row) != numFeatures {
			return fmt.Errorf("sample %d: %w", i, ErrFeatureCount)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("sample %d: %w", i, ErrNonFinite)
			}
		}
	}
	return nil
}

// Trained обучен ли детектор
func (d *Detector) Trained() bool {
	return d.state.Load() != nil
}

// DetectAnomaly true, если модель считает точку выбросом
func (d *Detector) DetectAnomaly(heartRate, bloodOxygen float64) (bool, error) {
	s := d.state.Load()
	if s == nil {
		return false, ErrNotTrained
	}
	return s.model.Predict(s.scaler.Transform([]float64{heartRate, bloodOxygen})), nil
}

// ConfidenceScore процент уверенности 0-100
func (d *Detector) ConfidenceScore(heartRate, bloodOxygen float64) (float64, error) {
	s := d.state.Load()
	if s == nil {
		return 0, ErrNotTrained
	}
	return Confidence(s.model.Score(s.scaler.Transform([]float64{heartRate, bloodOxygen}))), nil
}

// Classify вердикт и уверенность по одному снимку состояния
func (d *Detector) Classify(heartRate, bloodOxygen float64) (bool, float64, error) {
	s := d.state.Load()
	if s == nil {
		return false, 0, ErrNotTrained
	}
	x := s.scaler.Transform([]float64{heartRate, bloodOxygen})
	return s.model.Predict(x), Confidence(s.model.Score(x)), nil
}

// Confidence переводит сырой балл изоляционного леса в проценты: clamp(0, 100, (score+0.5)*100),
// округление до 2 знаков. Константы привязаны к шкале score в [-1, 0].
func Confidence(score float64) float64 {
	c := math.Max(0, math.Min(100, (score+0.5)*100))
	return math.Round(c*100) / 100
}

// Stats статистика детектора
func (d *Detector) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"trained":       false,
		"trees":         d.cfg.Trees,
		"contamination": d.cfg.Contamination,
		"seed":          d.cfg.Seed,
	}

	s := d.state.Load()
	if s == nil {
		return stats
	}

	stats["trained"] = true
	stats["samples"] = s.samples
	stats["trained_at"] = s.trainedAt
	stats["feature_mean"] = s.scaler.Mean
	stats["feature_variance"] = s.scaler.Variance
	if forest, ok := s.model.(*IsolationForest); ok {
		stats["threshold"] = forest.Threshold()
	}
	return stats
}
