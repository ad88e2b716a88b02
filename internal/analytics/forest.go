package analytics

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Model обучаемая модель выбросов
type Model interface {
	// Fit обучает модель на масштабированных данных
	Fit(samples [][]float64) error
	// Score сырой балл аномальности: чем ниже, тем аномальнее
	Score(sample []float64) float64
	// Predict возвращает true, если образец является выбросом
	Predict(sample []float64) bool
}

const (
	defaultMaxSamples = 256
	eulerGamma        = 0.5772156649015329
)

// IsolationForest ансамбль деревьев изоляции
type IsolationForest struct {
	trees         []*isolationNode
	numTrees      int
	contamination float64
	seed          uint64
	sampleSize    int
	threshold     float64
	trained       bool
}

type isolationNode struct {
	feature int
	split   float64
	left    *isolationNode
	right   *isolationNode
	size    int
}

func (n *isolationNode) isLeaf() bool {
	return n.left == nil
}

// NewIsolationForest создает необученный лес
func NewIsolationForest(numTrees int, contamination float64, seed uint64) *IsolationForest {
	return &IsolationForest{
		numTrees:      numTrees,
		contamination: contamination,
		seed:          seed,
	}
}

// Fit строит деревья и вычисляет порог по доле загрязнения.
// При одинаковых данных и seed результат детерминирован.
func (m *IsolationForest) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return errors.New("isolation forest: no samples")
	}
	if m.numTrees <= 0 {
		return errors.New("isolation forest: number of trees must be positive")
	}
	if m.contamination <= 0 || m.contamination > 0.5 {
		return errors.New("isolation forest: contamination must be in (0, 0.5]")
	}

	rng := rand.New(rand.NewPCG(m.seed, m.seed^0x5851f42d4c957f2d))

	m.sampleSize = min(defaultMaxSamples, len(samples))
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(m.sampleSize), 2))))

	m.trees = make([]*isolationNode, m.numTrees)
	for i := range m.trees {
		m.trees[i] = buildNode(rng, subsample(rng, samples, m.sampleSize), 0, maxDepth)
	}
	m.trained = true

	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = m.Score(s)
	}
	sort.Float64s(scores)
	m.threshold = stat.Quantile(m.contamination, stat.Empirical, scores, nil)

	return nil
}

// Score возвращает -2^(-E[h(x)]/c(n)) в диапазоне [-1, 0]
func (m *IsolationForest) Score(sample []float64) float64 {
	if !m.trained {
		return 0
	}

	total := 0.0
	for _, tree := range m.trees {
		total += pathLength(sample, tree)
	}
	mean := total / float64(len(m.trees))

	return -math.Pow(2, -mean/averagePathLength(m.sampleSize))
}

// Predict сравнивает балл с порогом обучающей выборки
func (m *IsolationForest) Predict(sample []float64) bool {
	return m.Score(sample) < m.threshold
}

// Threshold порог решения
func (m *IsolationForest) Threshold() float64 {
	return m.threshold
}

// subsample выборка без возвращения
func subsample(rng *rand.Rand, samples [][]float64, size int) [][]float64 {
	if len(samples) <= size {
		return samples
	}

	perm := rng.Perm(len(samples))
	out := make([][]float64, size)
	for i := 0; i < size; i++ {
		out[i] = samples[perm[i]]
	}
	return out
}

func buildNode(rng *rand.Rand, data [][]float64, depth, maxDepth int) *isolationNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &isolationNode{size: len(data)}
	}

	// Признаки перебираются в случайном порядке до первого неконстантного
	features := rng.Perm(len(data[0]))
	for _, f := range features {
		lo, hi := data[0][f], data[0][f]
		for _, row := range data[1:] {
			lo = math.Min(lo, row[f])
			hi = math.Max(hi, row[f])
		}
		if lo == hi {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)

		var left, right [][]float64
		for _, row := range data {
			if row[f] <= split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}

		return &isolationNode{
			feature: f,
			split:   split,
			left:    buildNode(rng, left, depth+1, maxDepth),
			right:   buildNode(rng, right, depth+1, maxDepth),
			size:    len(data),
		}
	}

	return &isolationNode{size: len(data)}
}

func pathLength(sample []float64, node *isolationNode) float64 {
	depth := 0.0
	for !node.isLeaf() {
		if sample[node.feature] <= node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + averagePathLength(node.size)
}

// averagePathLength средняя длина пути неуспешного поиска в BST из n элементов
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	nf := float64(n)
	return 2*(math.Log(nf-1)+eulerGamma) - 2*(nf-1)/nf
}
