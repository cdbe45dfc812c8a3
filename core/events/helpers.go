package events

import (
	"math/big"
	"strconv"

	"whalehub/core/types"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatCoins(c types.Coins) string {
	if len(c) == 0 {
		return ""
	}
	return c.String()
}
