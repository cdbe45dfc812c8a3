package incentive

import (
	"math/big"

	"whalehub/core/numeric"
)

const (
	// MinLockSeconds is the shortest unlocking duration that earns weight.
	MinLockSeconds uint64 = 86_400
	// MaxLockSeconds is the longest unlocking duration that earns weight.
	MaxLockSeconds uint64 = 31_556_926
)

var (
	weightScale     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weightDenom     = mustBig("7791996353100889432894")
	weightQuadratic = big.NewInt(109_498_841)
	weightLinear    = mustBig("249042009202369")
	weightOffsetNum = mustBig("246210981355969")
	weightOffsetDen = mustBig("246918738317569")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("incentive: invalid constant " + s)
	}
	return v
}

// CalculateWeight returns the weight amount earns when locked for
// unlockingDuration seconds. The multiplier grows quadratically from 1x at one
// day to 16x at one year and never drops below 1x.
func CalculateWeight(amount *big.Int, unlockingDuration uint64) (*big.Int, error) {
	if unlockingDuration < MinLockSeconds || unlockingDuration > MaxLockSeconds {
		return nil, &InvalidWeightError{UnlockingDuration: unlockingDuration}
	}
	d := new(big.Int).SetUint64(unlockingDuration)

	quadratic := new(big.Int).Mul(d, d)
	quadratic.Mul(quadratic, weightQuadratic)
	quadratic.Mul(quadratic, weightScale)
	quadratic.Quo(quadratic, weightDenom)

	linear := new(big.Int).Mul(d, weightLinear)
	linear.Mul(linear, weightScale)
	linear.Quo(linear, weightDenom)

	offset := new(big.Int).Mul(weightOffsetNum, weightScale)
	offset.Quo(offset, weightOffsetDen)

	multiplier := new(big.Int).Add(quadratic, linear)
	multiplier.Add(multiplier, offset)

	weight, err := numeric.MulDivFloor(amount, multiplier, weightScale)
	if err != nil {
		return nil, err
	}
	return numeric.Max(weight, amount), nil
}
