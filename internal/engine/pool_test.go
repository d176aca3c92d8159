package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePools(t *testing.T) {
	options := []string{"A", "B"}
	seed := map[string]float64{"A": 100, "B": 100}

	t.Run("seed only", func(t *testing.T) {
		p := ComputePools(options, seed, nil)
		assert.Equal(t, 100.0, p.ByOption["A"])
		assert.Equal(t, 100.0, p.ByOption["B"])
		assert.Equal(t, 200.0, p.Total)
	})

	t.Run("seed plus stakes", func(t *testing.T) {
		p := ComputePools(options, seed, []Stake{
			{Option: "A", Amount: 50},
			{Option: "B", Amount: 25},
			{Option: "A", Amount: 10},
		})
		assert.Equal(t, 160.0, p.ByOption["A"])
		assert.Equal(t, 125.0, p.ByOption["B"])
		assert.Equal(t, 285.0, p.Total)
	})

	t.Run("stake on unknown option is ignored", func(t *testing.T) {
		p := ComputePools(options, seed, []Stake{{Option: "C", Amount: 500}})
		assert.Equal(t, 200.0, p.Total)
		_, ok := p.ByOption["C"]
		assert.False(t, ok)
	})

	t.Run("missing seed entries default to zero", func(t *testing.T) {
		p := ComputePools(options, map[string]float64{"A": 100}, nil)
		assert.Equal(t, 0.0, p.ByOption["B"])
		assert.Equal(t, 100.0, p.Total)
	})
}

// Total must be the exact sum of the per-option pools.
func TestPoolAdditivity(t *testing.T) {
	options := []string{"A", "B", "C"}
	seed := map[string]float64{"A": 100, "B": 50, "C": 0}
	stakes := []Stake{
		{Option: "A", Amount: 12.5},
		{Option: "B", Amount: 7.25},
		{Option: "C", Amount: 3},
		{Option: "A", Amount: 0.01},
	}

	p := ComputePools(options, seed, stakes)
	sum := 0.0
	for _, v := range p.ByOption {
		sum += v
	}
	assert.Equal(t, sum, p.Total)
}

func TestCoefficients(t *testing.T) {
	t.Run("even seeds before stakes", func(t *testing.T) {
		// seed 100/100, fee 0.05: both sides pay 200*0.95/100 = 1.9
		p := ComputePools([]string{"A", "B"}, map[string]float64{"A": 100, "B": 100}, nil)
		coeffs := Coefficients(p, 0.05)
		assert.InDelta(t, 1.9, coeffs["A"], 1e-9)
		assert.InDelta(t, 1.9, coeffs["B"], 1e-9)
	})

	t.Run("odds shift after 50 on A", func(t *testing.T) {
		p := ComputePools([]string{"A", "B"}, map[string]float64{"A": 100, "B": 100},
			[]Stake{{Option: "A", Amount: 50}})
		require.Equal(t, 250.0, p.Total)
		coeffs := Coefficients(p, 0.05)
		assert.InDelta(t, 250*0.95/150, coeffs["A"], 1e-9)
		assert.InDelta(t, 2.375, coeffs["B"], 1e-9)
	})

	t.Run("no liquidity pays even odds", func(t *testing.T) {
		p := ComputePools([]string{"A", "B"}, nil, nil)
		coeffs := Coefficients(p, 0.05)
		assert.Equal(t, 1.0, coeffs["A"])
		assert.Equal(t, 1.0, coeffs["B"])
	})

	t.Run("empty outcome pool does not divide by zero", func(t *testing.T) {
		p := ComputePools([]string{"A", "B"}, map[string]float64{"A": 100}, nil)
		coeffs := Coefficients(p, 0)
		assert.InDelta(t, 1.0, coeffs["A"], 1e-9)
		// pool[B] == 0: coefficient is huge but finite
		assert.Greater(t, coeffs["B"], 1e9)
	})

	t.Run("zero fee distributes the whole pool", func(t *testing.T) {
		p := ComputePools([]string{"A", "B"}, map[string]float64{"A": 60, "B": 40}, nil)
		coeffs := Coefficients(p, 0)
		assert.InDelta(t, 100.0/60.0, coeffs["A"], 1e-9)
		assert.InDelta(t, 2.5, coeffs["B"], 1e-9)
	})
}

// coeff[o] * pool[o] == total * (1 - fee) for every funded outcome: the full
// post-commission pool pays out no matter which outcome wins.
func TestFairOddsInvariant(t *testing.T) {
	options := []string{"A", "B", "C"}
	seed := map[string]float64{"A": 100, "B": 100, "C": 100}
	stakes := []Stake{
		{Option: "A", Amount: 333.33},
		{Option: "B", Amount: 12},
		{Option: "C", Amount: 0.5},
	}

	for _, fee := range []float64{0, 0.05, 0.2, 0.99} {
		p := ComputePools(options, seed, stakes)
		coeffs := Coefficients(p, fee)
		want := p.Total * (1 - fee)
		for _, opt := range options {
			assert.InDelta(t, want, coeffs[opt]*p.ByOption[opt], 1e-6,
				"fee %v option %s", fee, opt)
		}
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name        string
		options     []string
		want        []string
		expectError bool
	}{
		{name: "two options", options: []string{"A", "B"}, want: []string{"A", "B"}},
		{name: "trims whitespace", options: []string{" A ", "B"}, want: []string{"A", "B"}},
		{name: "drops blanks", options: []string{"A", "  ", "B"}, want: []string{"A", "B"}},
		{name: "single option", options: []string{"A"}, expectError: true},
		{name: "blank only", options: []string{"  ", ""}, expectError: true},
		{name: "duplicates", options: []string{"A", "A"}, expectError: true},
		{name: "duplicates after trim", options: []string{"A", " A"}, expectError: true},
		{name: "empty", options: nil, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateOptions(tt.options)
			if tt.expectError {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateFee(t *testing.T) {
	assert.NoError(t, ValidateFee(0))
	assert.NoError(t, ValidateFee(0.05))
	assert.NoError(t, ValidateFee(0.999))
	assert.ErrorIs(t, ValidateFee(1), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateFee(1.5), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateFee(-0.01), ErrInvalidArgument)
}

func TestValidateSeedPool(t *testing.T) {
	options := []string{"A", "B"}
	assert.NoError(t, ValidateSeedPool(options, nil))
	assert.NoError(t, ValidateSeedPool(options, map[string]float64{"A": 100}))
	assert.ErrorIs(t, ValidateSeedPool(options, map[string]float64{"C": 100}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateSeedPool(options, map[string]float64{"A": -1}), ErrInvalidArgument)
}
