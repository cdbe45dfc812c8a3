package incentive

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrUnauthorized                    = errors.New("incentive: unauthorized")
	ErrNonPayable                      = errors.New("incentive: this message does not accept funds")
	ErrNoFunds                         = errors.New("incentive: no funds sent")
	ErrAssetMismatch                   = errors.New("incentive: the asset sent doesn't match the asset expected")
	ErrIncentiveAlreadyExists          = errors.New("incentive: an incentive with the given identifier already exists")
	ErrUnspecifiedConcurrentIncentives = errors.New("incentive: max_concurrent_incentives cannot be set to zero")
	ErrNonExistentIncentive            = errors.New("incentive: incentive doesn't exist")
	ErrIncentiveFeeMissing             = errors.New("incentive: incentive creation fee was not included")
	ErrIncentiveEndsInPast             = errors.New("incentive: incentive end epoch was set to an epoch in the past")
	ErrIncentiveStartTimeAfterEndTime  = errors.New("incentive: incentive start epoch is after the end epoch")
	ErrIncentiveStartTooFar            = errors.New("incentive: incentive start epoch is too far into the future")
	ErrIncentiveAlreadyExpired         = errors.New("incentive: the incentive has already expired, can't be expanded")
	ErrIncentiveExhausted              = errors.New("incentive: the incentive doesn't have enough funds to pay out the reward")
	ErrUnsupportedCurve                = errors.New("incentive: unsupported emission curve")
	ErrNoOpenPositions                 = errors.New("incentive: the sender doesn't have open positions")
	ErrNonExistentPosition             = errors.New("incentive: no position found with the given identifier")
	ErrPositionAlreadyClosed           = errors.New("incentive: the position has already been closed")
	ErrPositionNotExpired              = errors.New("incentive: the position has not expired yet")
	ErrInvalidEmergencyUnlockPenalty   = errors.New("incentive: the emergency unlock penalty provided is invalid")
	ErrInvalidClaimGracePeriod         = errors.New("incentive: claim grace period must be greater than zero")
	ErrPendingRewards                  = errors.New("incentive: there are pending rewards to be claimed before this action can be executed")
	ErrNothingToClaim                  = errors.New("incentive: nothing to claim")
	ErrNothingToWithdraw               = errors.New("incentive: nothing to withdraw")
	ErrEpochExpired                    = errors.New("incentive: current epoch has expired, wait for the next epoch to start")
	ErrNotInstantiated                 = errors.New("incentive: manager not instantiated")
	ErrAlreadyInstantiated             = errors.New("incentive: manager already instantiated")
)

// InvalidUnbondingRangeError is returned when the unlocking duration bounds
// are inverted.
type InvalidUnbondingRangeError struct {
	Min uint64
	Max uint64
}

func (e *InvalidUnbondingRangeError) Error() string {
	return fmt.Sprintf("incentive: invalid unbonding range, specified min as %d and max as %d", e.Min, e.Max)
}

type TooManyIncentivesError struct {
	Max uint32
}

func (e *TooManyIncentivesError) Error() string {
	return fmt.Sprintf("incentive: attempt to create a new incentive, which exceeds the maximum of %d incentives allowed per LP at a time", e.Max)
}

type InvalidIncentiveAmountError struct {
	Min *big.Int
}

func (e *InvalidIncentiveAmountError) Error() string {
	return fmt.Sprintf("incentive: attempt to create a new incentive with a small incentive_asset amount, which is less than the minimum of %s", e.Min)
}

type IncentiveFeeNotPaidError struct {
	Paid     *big.Int
	Required *big.Int
}

func (e *IncentiveFeeNotPaidError) Error() string {
	return fmt.Sprintf("incentive: incentive creation fee was not fulfilled, only %s / %s present", e.Paid, e.Required)
}

type InvalidUnlockingDurationError struct {
	Min       uint64
	Max       uint64
	Specified uint64
}

func (e *InvalidUnlockingDurationError) Error() string {
	return fmt.Sprintf("incentive: invalid unlocking duration of %d specified, must be between %d and %d", e.Specified, e.Min, e.Max)
}

// InvalidWeightError is returned when a weight is requested for a duration
// outside one day to one year.
type InvalidWeightError struct {
	UnlockingDuration uint64
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("incentive: attempt to compute the weight of a duration of %d which is outside the allowed bounds", e.UnlockingDuration)
}

// GlobalWeightSnapshotNotTakenError is returned when an address holds weight
// in an epoch for which no LP weight snapshot exists.
type GlobalWeightSnapshotNotTakenError struct {
	Epoch uint64
}

func (e *GlobalWeightSnapshotNotTakenError) Error() string {
	return fmt.Sprintf("incentive: there's no snapshot of the LP weight for the epoch %d", e.Epoch)
}
