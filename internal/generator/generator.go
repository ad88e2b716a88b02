package generator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"healthai/internal/models"
)

// Вероятность подмены значения аномальным
const anomalyProbability = 0.05

type intRange struct {
	min, max int
}

// Базовые диапазоны пульса по уровню активности
var heartRateRanges = map[models.ActivityLevel]intRange{
	models.ActivityLow:      {60, 75},
	models.ActivityModerate: {70, 90},
	models.ActivityHigh:     {90, 120},
}

var (
	bradycardiaRange = intRange{40, 55}
	tachycardiaRange = intRange{105, 130}
	oxygenRange      = intRange{95, 100}
	hypoxiaRange     = intRange{88, 94}
)

// Generator генератор симулированных показаний
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New создает генератор с явным источником случайности
func New(src rand.Source) *Generator {
	return &Generator{
		rng: rand.New(src),
		now: time.Now,
	}
}

// NewSeeded создает воспроизводимый генератор
func NewSeeded(seed uint64) *Generator {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// WithClock подменяет источник времени
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// ActivityLevel выбирает уровень активности равновероятно
func (g *Generator) ActivityLevel() models.ActivityLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activityLevel()
}

// HeartRate генерирует пульс для уровня активности
func (g *Generator) HeartRate(level models.ActivityLevel) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heartRate(level)
}

// BloodOxygen генерирует сатурацию
func (g *Generator) BloodOxygen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bloodOxygen()
}

// SleepHours генерирует длительность сна с точностью до 0.1
func (g *Generator) SleepHours() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sleepHours()
}

// Reading генерирует полное показание с текущим временем
func (g *Generator) Reading() models.Reading {
	ts := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reading(ts)
}

// History генерирует days*24 почасовых показаний назад от текущего момента.
// Показания независимы друг от друга.
func (g *Generator) History(days int) []models.Reading {
	if days <= 0 {
		return []models.Reading{}
	}

	now := g.now()
	readings := make([]models.Reading, 0, days*24)

	g.mu.Lock()
	defer g.mu.Unlock()

	for day := 0; day < days; day++ {
		for hour := 0; hour < 24; hour++ {
			offset := time.Duration(day*24+hour) * time.Hour
			readings = append(readings, g.reading(now.Add(-offset)))
		}
	}
	return readings
}

// TrainingSet генерирует n пар (пульс, сатурация) для обучения детектора
func (g *Generator) TrainingSet(n int) [][]float64 {
	samples := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		r := g.Reading()
		samples = append(samples, []float64{float64(r.HeartRate), float64(r.BloodOxygen)})
	}
	return samples
}

func (g *Generator) reading(ts time.Time) models.Reading {
	level := g.activityLevel()
	return models.Reading{
		HeartRate:     g.heartRate(level),
		BloodOxygen:   g.bloodOxygen(),
		SleepHours:    g.sleepHours(),
		ActivityLevel: level,
		Timestamp:     ts,
	}
}

func (g *Generator) activityLevel() models.ActivityLevel {
	return models.ActivityLevels[g.rng.IntN(len(models.ActivityLevels))]
}

func (g *Generator) heartRate(level models.ActivityLevel) int {
	base, ok := heartRateRanges[level]
	if !ok {
		base = heartRateRanges[models.ActivityModerate]
	}

	hr := g.intIn(base)
	if g.rng.Float64() < anomalyProbability {
		if g.rng.Float64() < 0.5 {
			hr = g.intIn(bradycardiaRange)
		} else {
			hr = g.intIn(tachycardiaRange)
		}
	}
	return hr
}

func (g *Generator) bloodOxygen() int {
	spo2 := g.intIn(oxygenRange)
	if g.rng.Float64() < anomalyProbability {
		spo2 = g.intIn(hypoxiaRange)
	}
	return spo2
}

func (g *Generator) sleepHours() float64 {
	v := 6.0 + g.rng.Float64()*3.0
	return math.Round(v*10) / 10
}

// intIn равномерное целое в [min, max] включительно
func (g *Generator) intIn(r intRange) int {
	return r.min + g.rng.IntN(r.max-r.min+1)
}
