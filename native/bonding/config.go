package bonding

import (
	"strings"

	"whalehub/core/numeric"
)

func validateGrowthRate(rate numeric.Decimal) error {
	if rate.Cmp(numeric.OneDecimal()) > 0 {
		return ErrInvalidGrowthRate
	}
	return nil
}

func validateGracePeriod(period uint64) error {
	if period == 0 || period > 10 {
		return ErrInvalidGracePeriod
	}
	return nil
}

func validateBondingAssets(assets []string) error {
	if len(assets) > BondingAssetsLimit {
		return &InvalidBondingAssetsLimitError{Limit: BondingAssetsLimit, Got: len(assets)}
	}
	for _, denom := range assets {
		if strings.TrimSpace(denom) == "" {
			return ErrAssetMismatch
		}
	}
	return nil
}

// Validate checks every config invariant.
func (c *Config) Validate() error {
	if err := validateBondingAssets(c.BondingAssets); err != nil {
		return err
	}
	if err := validateGrowthRate(c.GrowthRate); err != nil {
		return err
	}
	return validateGracePeriod(c.GracePeriod)
}

func (c *Config) acceptsDenom(denom string) bool {
	for _, d := range c.BondingAssets {
		if d == denom {
			return true
		}
	}
	return false
}
