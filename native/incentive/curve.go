package incentive

import (
	"fmt"
	"math/big"

	"whalehub/core/numeric"
)

// Curve is the emission curve of an incentive. The zero value is not a valid
// curve.
type Curve uint8

const (
	// CurveLinear releases the same amount every epoch.
	CurveLinear Curve = iota + 1
)

func (c Curve) String() string {
	switch c {
	case CurveLinear:
		return "linear"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

func (c Curve) Validate() error {
	switch c {
	case CurveLinear:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
}

func (c Curve) MarshalText() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []byte(c.String()), nil
}

func (c *Curve) UnmarshalText(text []byte) error {
	switch string(text) {
	case "linear", "":
		*c = CurveLinear
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCurve, string(text))
	}
}

// Emission returns what inc releases in epoch under the curve.
func (c Curve) Emission(inc *Incentive, epoch uint64) (*big.Int, error) {
	switch c {
	case CurveLinear:
		if epoch < inc.StartEpoch {
			return numeric.Zero(), nil
		}
		entry, ok := inc.scheduleAt(epoch)
		if !ok || epoch >= entry.EndEpoch {
			return numeric.Zero(), nil
		}
		return numeric.Clone(entry.Rate), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
}
