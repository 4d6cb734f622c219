// Package money holds the integer currency arithmetic shared by pricing,
// vouchers and points. Amounts are whole currency units.
package money

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns round(amount * pct / 100), half away from zero.
func Percent(amount int64, pct int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(pct)).
		Div(hundred).
		Round(0).
		IntPart()
}

// ApplyPercentOff returns amount reduced by pct percent, rounded to whole units.
func ApplyPercentOff(amount int64, pct int64) int64 {
	if pct <= 0 {
		return amount
	}
	if pct >= 100 {
		return 0
	}
	return amount - Percent(amount, pct)
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Sum adds every amount.
func Sum(amounts []int64) int64 {
	var total int64
	for _, a := range amounts {
		total += a
	}
	return total
}

// Allocate splits total across weights with the largest-remainder method.
// Shares are proportional to weights, never exceed the weight they are
// charged against, and always sum to min(total, sum(weights)).
func Allocate(total int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return shares
	}

	weightSum := int64(0)
	for _, w := range weights {
		if w > 0 {
			weightSum += w
		}
	}
	if weightSum == 0 {
		return shares
	}
	if total >= weightSum {
		for i, w := range weights {
			if w > 0 {
				shares[i] = w
			}
		}
		return shares
	}

	type remainder struct {
		index int
		frac  decimal.Decimal
	}

	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(weightSum)
	rems := make([]remainder, 0, len(weights))
	allocated := int64(0)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		exact := totalDec.Mul(decimal.NewFromInt(w)).Div(sumDec)
		floor := exact.Floor()
		shares[i] = floor.IntPart()
		allocated += shares[i]
		rems = append(rems, remainder{index: i, frac: exact.Sub(floor)})
	}

	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})
	for left := total - allocated; left > 0; {
		for _, r := range rems {
			if left == 0 {
				break
			}
			if shares[r.index] < weights[r.index] {
				shares[r.index]++
				left--
			}
		}
	}
	return shares
}
