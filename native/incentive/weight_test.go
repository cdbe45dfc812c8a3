package incentive

import (
	"errors"
	"math/big"
	"testing"
)

func TestCalculateWeight(t *testing.T) {
	cases := []struct {
		duration uint64
		want     int64
	}{
		{86_400, 100},
		{2_629_746, 117},
		{7_889_238, 212},
		{15_778_476, 500},
		{31_556_926, 1_599},
	}
	for _, tc := range cases {
		got, err := CalculateWeight(big.NewInt(100), tc.duration)
		if err != nil {
			t.Fatalf("duration %d: %v", tc.duration, err)
		}
		if got.Int64() != tc.want {
			t.Fatalf("duration %d: expected %d, got %s", tc.duration, tc.want, got)
		}
	}
}

func TestCalculateWeightBounds(t *testing.T) {
	for _, duration := range []uint64{MinLockSeconds - 1, MaxLockSeconds + 1} {
		_, err := CalculateWeight(big.NewInt(100), duration)
		var weightErr *InvalidWeightError
		if !errors.As(err, &weightErr) || weightErr.UnlockingDuration != duration {
			t.Fatalf("duration %d: expected InvalidWeightError, got %v", duration, err)
		}
	}
}
