package recommender

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Model is a factorization machine over three one-hot feature groups: user,
// product and category codes. Each code carries a linear weight and a k-dim
// latent vector; pairwise interactions between the three active codes are the
// inner products of their latent vectors. Codes outside the trained range
// contribute nothing, so a model trained against older data degrades to a
// bias-only score instead of failing.
type Model struct {
	Factors int
	Bias    float64

	// Linear weights, indexed by code. Index 0 is unused for users and
	// products; for categories it is the "no category" sentinel and is
	// learned like any other code.
	UserW     []float64
	ProductW  []float64
	CategoryW []float64

	// Latent factor vectors, same indexing as the linear weights.
	UserV     [][]float64
	ProductV  [][]float64
	CategoryV [][]float64
}

func newModel(userCount, productCount, categoryCount, factors int) *Model {
	m := &Model{
		Factors:   factors,
		UserW:     make([]float64, userCount+1),
		ProductW:  make([]float64, productCount+1),
		CategoryW: make([]float64, categoryCount+1),
	}
	m.UserV = newFactorMatrix(userCount+1, factors)
	m.ProductV = newFactorMatrix(productCount+1, factors)
	m.CategoryV = newFactorMatrix(categoryCount+1, factors)
	return m
}

func newFactorMatrix(rows, factors int) [][]float64 {
	v := make([][]float64, rows)
	for i := range v {
		v[i] = make([]float64, factors)
	}
	return v
}

// Predict returns the affinity score in (0, 1) for a (user, product,
// category) code triple.
func (m *Model) Predict(user float64, product, category int) float64 {
	return sigmoid(m.raw(user, product, category))
}

func (m *Model) raw(user float64, product, category int) float64 {
	z := m.Bias

	u := int(user)
	var vu, vp, vc []float64
	if u > 0 && u < len(m.UserW) {
		z += m.UserW[u]
		vu = m.UserV[u]
	}
	if product > 0 && product < len(m.ProductW) {
		z += m.ProductW[product]
		vp = m.ProductV[product]
	}
	if category >= 0 && category < len(m.CategoryW) {
		z += m.CategoryW[category]
		vc = m.CategoryV[category]
	}

	if vu != nil && vp != nil {
		z += floats.Dot(vu, vp)
	}
	if vu != nil && vc != nil {
		z += floats.Dot(vu, vc)
	}
	if vp != nil && vc != nil {
		z += floats.Dot(vp, vc)
	}

	return z
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// Marshal serializes the model into the opaque blob the model store persists.
func (m *Model) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalModel restores a model from a persisted blob.
func UnmarshalModel(blob []byte) (*Model, error) {
	var m Model
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return &m, nil
}
