package engine

import (
	"fmt"
	"strings"
)

// epsilon guards the coefficient division when an outcome holds no money
const epsilon = 1e-9

// Stake is one pending wager's contribution to an event's pool.
type Stake struct {
	Option string
	Amount float64
}

// Pools holds the per-outcome liquidity of one event. Total is always the
// exact sum of ByOption.
type Pools struct {
	ByOption map[string]float64
	Total    float64
}

// ComputePools sums seed liquidity plus pending stakes per outcome. Stakes
// on options the event does not carry are ignored; they cannot exist through
// PlaceStake but the calculator does not trust its input.
func ComputePools(options []string, seed map[string]float64, pending []Stake) Pools {
	byOption := make(map[string]float64, len(options))
	for _, opt := range options {
		byOption[opt] = seed[opt]
	}
	for _, s := range pending {
		if _, ok := byOption[s.Option]; ok {
			byOption[s.Option] += s.Amount
		}
	}

	total := 0.0
	for _, v := range byOption {
		total += v
	}
	return Pools{ByOption: byOption, Total: total}
}

// Coefficients computes the payout multiplier per outcome:
// (total * (1 - fee)) / pool[o]. With no liquidity at all every outcome
// pays 1.0. An individual empty pool divides by epsilon instead of zero.
//
// For every outcome with money on it, coeff[o] * pool[o] equals the
// post-commission pool: the market pays out its full volume no matter
// which outcome wins.
func Coefficients(p Pools, fee float64) map[string]float64 {
	coeffs := make(map[string]float64, len(p.ByOption))
	if p.Total <= 0 {
		for opt := range p.ByOption {
			coeffs[opt] = 1.0
		}
		return coeffs
	}

	distributable := p.Total * (1.0 - fee)
	for opt, pool := range p.ByOption {
		coeffs[opt] = distributable / max(pool, epsilon)
	}
	return coeffs
}

// ValidateOptions checks an event's outcome set: at least two options, all
// non-blank after trimming, no duplicates. Returns the trimmed set.
func ValidateOptions(options []string) ([]string, error) {
	trimmed := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if seen[opt] {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrInvalidArgument, opt)
		}
		seen[opt] = true
		trimmed = append(trimmed, opt)
	}
	if len(trimmed) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct options", ErrInvalidArgument)
	}
	return trimmed, nil
}

// ValidateFee checks the commission rate is in [0, 1).
func ValidateFee(fee float64) error {
	if fee < 0 || fee >= 1 {
		return fmt.Errorf("%w: fee_percent %v outside [0, 1)", ErrInvalidArgument, fee)
	}
	return nil
}

// ValidateSeedPool checks every seed amount is non-negative and refers to a
// known option.
func ValidateSeedPool(options []string, seed map[string]float64) error {
	known := make(map[string]bool, len(options))
	for _, opt := range options {
		known[opt] = true
	}
	for opt, amt := range seed {
		if !known[opt] {
			return fmt.Errorf("%w: seed pool option %q not in event options", ErrInvalidArgument, opt)
		}
		if amt < 0 {
			return fmt.Errorf("%w: seed pool for %q is negative", ErrInvalidArgument, opt)
		}
	}
	return nil
}
