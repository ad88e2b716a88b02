package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler приводит каждый признак к нулевому среднему и единичной дисперсии
type StandardScaler struct {
	Mean     []float64
	Variance []float64
	scale    []float64
}

// FitScaler вычисляет среднее и дисперсию (смещенную) по каждому столбцу
func FitScaler(samples [][]float64) *StandardScaler {
	if len(samples) == 0 {
		return &StandardScaler{}
	}

	features := len(samples[0])
	s := &StandardScaler{
		Mean:     make([]float64, features),
		Variance: make([]float64, features),
		scale:    make([]float64, features),
	}

	column := make([]float64, len(samples))
	for f := 0; f < features; f++ {
		for i, row := range samples {
			column[i] = row[f]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		s.Mean[f] = mean
		s.Variance[f] = variance

		// Константный признак только центрируется
		s.scale[f] = 1
		if variance > 0 {
			s.scale[f] = math.Sqrt(variance)
		}
	}
	return s
}

// Transform масштабирует одну строку
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for f, v := range row {
		out[f] = (v - s.Mean[f]) / s.scale[f]
	}
	return out
}

// TransformAll масштабирует набор строк
func (s *StandardScaler) TransformAll(samples [][]float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i, row := range samples {
		out[i] = s.Transform(row)
	}
	return out
}
