package recommender

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/merchantry/affinity/internal/config"
)

// ErrNoTrainingData is returned by Train when the dataset is nil or empty.
// Callers are expected to detect the cold-start case before training; hitting
// this is a contract violation, not a recoverable runtime path.
var ErrNoTrainingData = errors.New("recommender: no training data")

// Example is one labeled (user, product, category) observation. Label is true
// for an observed purchase and false for a catalog product the user never
// bought.
type Example struct {
	User     float64
	Product  int
	Category int
	Label    bool
}

type Dataset struct {
	Examples      []Example
	UserCount     int
	ProductCount  int
	CategoryCount int
}

func (ds *Dataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Examples)
}

// Train fits a factorization machine to the dataset with SGD on logistic
// loss. The RNG is seeded from config and examples are visited in an order
// derived from the same RNG, so training is fully deterministic: two runs
// over the same dataset produce identical parameters.
func Train(ds *Dataset, cfg config.TrainingConfig) (*Model, error) {
	if ds.Len() == 0 {
		return nil, ErrNoTrainingData
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	model := newModel(ds.UserCount, ds.ProductCount, ds.CategoryCount, cfg.Factors)
	initFactors(model.UserV, rng)
	initFactors(model.ProductV, rng)
	initFactors(model.CategoryV, rng)

	grad := make([]float64, cfg.Factors)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, i := range rng.Perm(len(ds.Examples)) {
			ex := ds.Examples[i]

			target := 0.0
			if ex.Label {
				target = 1.0
			}

			// g is the derivative of the logistic loss wrt the raw score.
			g := sigmoid(model.raw(ex.User, ex.Product, ex.Category)) - target

			u := int(ex.User)
			vu := model.UserV[u]
			vp := model.ProductV[ex.Product]
			vc := model.CategoryV[ex.Category]

			model.Bias -= cfg.LearningRate * g
			model.UserW[u] -= cfg.LearningRate * (g + cfg.Regularization*model.UserW[u])
			model.ProductW[ex.Product] -= cfg.LearningRate * (g + cfg.Regularization*model.ProductW[ex.Product])
			model.CategoryW[ex.Category] -= cfg.LearningRate * (g + cfg.Regularization*model.CategoryW[ex.Category])

			// d(raw)/d(vu) = vp + vc, and symmetrically for the others.
			sgdStep(vu, vp, vc, grad, g, cfg.LearningRate, cfg.Regularization)
			sgdStep(vp, vu, vc, grad, g, cfg.LearningRate, cfg.Regularization)
			sgdStep(vc, vu, vp, grad, g, cfg.LearningRate, cfg.Regularization)
		}
	}

	return model, nil
}

// sgdStep applies one gradient update to v, whose interaction partners are a
// and b. grad is scratch space to avoid allocating per example.
func sgdStep(v, a, b, grad []float64, g, lr, reg float64) {
	copy(grad, a)
	floats.Add(grad, b)
	floats.Scale(g, grad)
	floats.AddScaled(grad, reg, v)
	floats.AddScaled(v, -lr, grad)
}

// initFactors fills latent vectors with small random values. Row 0 of the
// user and product matrices is never referenced but initializing every row
// keeps the RNG consumption independent of dataset shape quirks.
func initFactors(v [][]float64, rng *rand.Rand) {
	const scale = 0.01
	for i := range v {
		for j := range v[i] {
			v[i][j] = rng.NormFloat64() * scale
		}
	}
}
