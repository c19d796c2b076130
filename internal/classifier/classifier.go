package classifier

import (
	"math"
	"sort"

	"github.com/sells-group/newscat/internal/model"
)

// Snapshot is one fully-loaded, immutable model. All fields are read-only
// after construction, so a Snapshot may be shared by any number of
// concurrent predictions.
type Snapshot struct {
	manifest   Manifest
	categories []string
	vocab      map[string]int
	coef       [][]float64
	intercept  []float64
}

func newSnapshot(m Manifest, w *Weights) *Snapshot {
	return &Snapshot{
		manifest:   m,
		categories: w.Categories,
		vocab:      w.Vocabulary,
		coef:       w.Coef,
		intercept:  w.Intercept,
	}
}

// Version returns the artifact version string.
func (s *Snapshot) Version() string { return s.manifest.Version }

// Manifest returns the artifact manifest.
func (s *Snapshot) Manifest() Manifest { return s.manifest }

// Categories returns the label set in training order.
func (s *Snapshot) Categories() []string {
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// Predict scores preprocessed text and returns the full category
// distribution sorted by confidence, non-increasing. Confidences are a
// softmax over the linear scores, so they sum to 1 across the full set.
func (s *Snapshot) Predict(text string) []model.CategoryScore {
	logits := make([]float64, len(s.categories))
	copy(logits, s.intercept)

	for _, tok := range Tokenize(text) {
		idx, ok := s.vocab[tok]
		if !ok {
			continue
		}
		for c := range logits {
			logits[c] += s.coef[c][idx]
		}
	}

	probs := softmax(logits)

	scores := make([]model.CategoryScore, len(s.categories))
	for i, cat := range s.categories {
		scores[i] = model.CategoryScore{Category: cat, Confidence: probs[i]}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})
	return scores
}

func softmax(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		if v > max {
			max = v
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
