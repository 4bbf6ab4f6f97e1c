package math

import (
	"fmt"
	"math/big"
	"strings"
)

// BpsDenominator is the number of basis points in 100%.
const BpsDenominator = 10000

var (
	gweiScale = big.NewInt(1_000_000_000)
	ten       = big.NewInt(10)
)

// UnitScale returns 10^decimals.
func UnitScale(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// ParseUnits converts a decimal string in whole units ("10", "0.5") into base
// units for a token with the given number of decimals. Fractions finer than
// the token precision are rejected.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(value, "-")
	if neg {
		value = value[1:]
	}

	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatUnits renders base units as a decimal string with trailing zeros
// trimmed. A nil amount renders as "0".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}

	abs := new(big.Int).Abs(amount)
	q, r := new(big.Int).QuoRem(abs, UnitScale(decimals), new(big.Int))

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}

	frac := r.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

// MulBps returns amount * bps / 10000, rounded toward zero.
func MulBps(amount *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Quo(out, big.NewInt(BpsDenominator))
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Abs(d)
}

// WeiToGwei converts a wei amount into a float gwei value.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(wei, gweiScale).Float64()
	return f
}

// GweiToWei converts a float gwei value into wei.
func GweiToWei(gwei float64) *big.Int {
	r := new(big.Rat).SetFloat64(gwei)
	if r == nil {
		return new(big.Int)
	}
	r.Mul(r, new(big.Rat).SetInt(gweiScale))
	return new(big.Int).Quo(r.Num(), r.Denom())
}
