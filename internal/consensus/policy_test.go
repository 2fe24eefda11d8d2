package consensus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-reconcile/internal/model"
)

func TestDefaultPolicy_Weights(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		src  model.SourceID
		want float64
	}{
		{model.SourceRegistry, 1.0},
		{model.SourceStateBoard, 0.9},
		{model.SourceHospital, 0.7},
		{model.SourceMaps, 0.5},
		{model.SourceOriginal, 0.3},
		{"yelp", 0.2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Weight(tt.src), tt.src)
	}
	assert.Equal(t, 0.75, p.Threshold)
	require.NoError(t, p.Validate())
}

func TestPolicy_MaxPossible(t *testing.T) {
	p := DefaultPolicy()

	assert.InDelta(t, 1.0, p.MaxPossible(1), 1e-9)
	assert.InDelta(t, 1.9, p.MaxPossible(2), 1e-9)
	assert.InDelta(t, 2.6, p.MaxPossible(3), 1e-9)
	assert.InDelta(t, 3.4, p.MaxPossible(5), 1e-9)
	assert.InDelta(t, 3.4, p.MaxPossible(9), 1e-9)
	assert.Equal(t, 1.0, p.MaxPossible(0))
}

func TestPolicy_WithThreshold(t *testing.T) {
	p := DefaultPolicy().WithThreshold(0.6)
	assert.Equal(t, 0.6, p.Threshold)
	assert.Equal(t, 1.0, p.Weight(model.SourceRegistry))
}

func TestPolicy_Validate(t *testing.T) {
	p := newPolicy(1.5, -1, map[model.SourceID]float64{model.SourceMaps: 0})
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
	assert.Contains(t, err.Error(), "unknown_weight")
	assert.Contains(t, err.Error(), "maps")
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `consensus:
  threshold: 0.8
  weights:
    npi: 0.95
    yelp: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, p.Threshold)
	assert.Equal(t, 0.2, p.UnknownWeight)
	assert.Equal(t, 0.95, p.Weight(model.SourceRegistry))
	assert.Equal(t, 0.4, p.Weight("yelp"))
	assert.Equal(t, 0.9, p.Weight(model.SourceStateBoard))
	assert.InDelta(t, 0.95+0.9, p.MaxPossible(2), 1e-9)
}

func TestLoadPolicy_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consensus:\n  threshold: 0\n"), 0o600))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
