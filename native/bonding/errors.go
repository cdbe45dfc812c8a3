package bonding

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized           = errors.New("bonding: unauthorized")
	ErrNoFunds                = errors.New("bonding: no funds sent")
	ErrNonPayable             = errors.New("bonding: this message does not accept funds")
	ErrAssetMismatch          = errors.New("bonding: the asset sent doesn't match the asset expected")
	ErrInsufficientBond       = errors.New("bonding: the amount of tokens to unbond is greater than the amount of tokens bonded")
	ErrInvalidUnbondingAmount = errors.New("bonding: the amount of tokens to unbond must be greater than zero")
	ErrInvalidGrowthRate      = errors.New("bonding: the growth rate must be between 0 and 1, i.e. 0.5 for 50%")
	ErrInvalidGracePeriod     = errors.New("bonding: grace period must be between 1 and 10 epochs")
	ErrNothingToUnbond        = errors.New("bonding: nothing to unbond")
	ErrNothingToWithdraw      = errors.New("bonding: nothing to withdraw")
	ErrUnclaimedRewards       = errors.New("bonding: there are unclaimed rewards available, claim them before attempting to bond/unbond")
	ErrNoRewardBuckets        = errors.New("bonding: trying to bond before an epoch has been created")
	ErrNewEpochNotCreatedYet  = errors.New("bonding: a new epoch has not been created yet")
	ErrNothingToClaim         = errors.New("bonding: nothing to claim")
	ErrInvalidShare           = errors.New("bonding: something is off with the reward calculation, claims exceed the bucket")
	ErrRewardBucketNotFound   = errors.New("bonding: reward bucket not found")
	ErrNotInstantiated        = errors.New("bonding: manager not instantiated")
	ErrAlreadyInstantiated    = errors.New("bonding: manager already instantiated")
)

// InvalidBondingAssetsLimitError is returned when more bonding assets are
// configured than the manager supports.
type InvalidBondingAssetsLimitError struct {
	Limit int
	Got   int
}

func (e *InvalidBondingAssetsLimitError) Error() string {
	return fmt.Sprintf("bonding: the amount of bonding assets is greater than the limit allowed. Limit is %d, sent %d", e.Limit, e.Got)
}
