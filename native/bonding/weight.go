package bonding

import (
	"fmt"
	"math/big"

	"whalehub/core/numeric"
)

// getWeight grows weight by amount*growthRate for every epoch elapsed since
// lastUpdated. The epoch id is the clock.
func getWeight(current uint64, weight, amount *big.Int, growthRate numeric.Decimal, lastUpdated uint64) (*big.Int, error) {
	if current < lastUpdated {
		return nil, fmt.Errorf("%w: calculating time factor from epoch %d to %d", numeric.ErrOverflow, lastUpdated, current)
	}
	if current == lastUpdated {
		return numeric.CheckedAdd(weight, nil)
	}
	scaled, err := numeric.CheckedMul(amount, numeric.NewUint(current-lastUpdated))
	if err != nil {
		return nil, err
	}
	growth, err := growthRate.MulFloor(scaled)
	if err != nil {
		return nil, err
	}
	return numeric.CheckedAdd(weight, growth)
}

// updateBondWeight brings b forward to the current epoch and persists it.
func (e *Engine) updateBondWeight(current uint64, b *Bond, cfg *Config) error {
	weight, err := getWeight(current, b.Weight, b.Asset.Amount, cfg.GrowthRate, b.LastUpdated)
	if err != nil {
		return err
	}
	b.Weight = weight
	b.LastUpdated = current
	return e.state.BondPut(b)
}

// updateGlobalWeight brings the global index forward to the current epoch and
// persists it.
func (e *Engine) updateGlobalWeight(current uint64, g GlobalIndex, cfg *Config) (GlobalIndex, error) {
	weight, err := getWeight(current, g.LastWeight, g.BondedAmount, cfg.GrowthRate, g.LastUpdated)
	if err != nil {
		return GlobalIndex{}, err
	}
	g.LastWeight = weight
	g.LastUpdated = current
	if err := e.state.GlobalPut(g); err != nil {
		return GlobalIndex{}, err
	}
	return g, nil
}
