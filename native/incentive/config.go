package incentive

import "whalehub/core/numeric"

func validateUnlockingRange(lo, hi uint64) error {
	if lo > hi {
		return &InvalidUnbondingRangeError{Min: lo, Max: hi}
	}
	return nil
}

func validateEmergencyUnlockPenalty(penalty numeric.Decimal) error {
	if penalty.Cmp(numeric.OneDecimal()) > 0 {
		return ErrInvalidEmergencyUnlockPenalty
	}
	return nil
}

// Validate checks every config invariant.
func (c *Config) Validate() error {
	if c.MaxConcurrentIncentives == 0 {
		return ErrUnspecifiedConcurrentIncentives
	}
	if err := validateUnlockingRange(c.MinUnlockingDuration, c.MaxUnlockingDuration); err != nil {
		return err
	}
	if err := validateEmergencyUnlockPenalty(c.EmergencyUnlockPenalty); err != nil {
		return err
	}
	if c.ClaimGracePeriod == 0 {
		return ErrInvalidClaimGracePeriod
	}
	if !c.CreateIncentiveFee.IsZero() {
		return c.CreateIncentiveFee.Validate()
	}
	return nil
}

// graceStart is the oldest epoch still claimable at current.
func (c *Config) graceStart(current uint64) uint64 {
	if current+1 <= c.ClaimGracePeriod {
		return 0
	}
	return current + 1 - c.ClaimGracePeriod
}

func (c *Config) checkUnlockingDuration(duration uint64) error {
	if duration < c.MinUnlockingDuration || duration > c.MaxUnlockingDuration {
		return &InvalidUnlockingDurationError{
			Min:       c.MinUnlockingDuration,
			Max:       c.MaxUnlockingDuration,
			Specified: duration,
		}
	}
	return nil
}
