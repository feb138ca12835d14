package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_MarshalRoundTrip(t *testing.T) {
	model, err := Train(testDataset(), testTrainingConfig())
	require.NoError(t, err)

	blob, err := model.Marshal()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	restored, err := UnmarshalModel(blob)
	require.NoError(t, err)

	// The restored model must score identically to the original.
	for user := 1.0; user <= 2; user++ {
		for product := 1; product <= 3; product++ {
			category := product%2 + 1
			assert.Equal(t,
				model.Predict(user, product, category),
				restored.Predict(user, product, category))
		}
	}
}

func TestModel_MarshalIsStable(t *testing.T) {
	model, err := Train(testDataset(), testTrainingConfig())
	require.NoError(t, err)

	first, err := model.Marshal()
	require.NoError(t, err)
	second, err := model.Marshal()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestUnmarshalModel_CorruptBlob(t *testing.T) {
	_, err := UnmarshalModel([]byte("definitely not a gob stream"))
	assert.Error(t, err)
}
