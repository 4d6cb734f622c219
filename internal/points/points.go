// Package points computes loyalty points and applies balance changes.
package points

const (
	// UnitsPerPointEarned is how much settled spend earns one point.
	UnitsPerPointEarned int64 = 10_000
	// PointValue is the currency value of one redeemed point.
	PointValue int64 = 100
	// maxRedeemDivisor caps redemption at half the order: total * 0.5 / PointValue.
	maxRedeemDivisor = 2 * PointValue
)

// Earned returns floor(finalTotal / 10,000), never negative.
func Earned(finalTotal int64) int64 {
	if finalTotal <= 0 {
		return 0
	}
	return finalTotal / UnitsPerPointEarned
}

// MaxRedeemable returns min(available, floor(orderTotal * 0.5 / 100)).
func MaxRedeemable(available, orderTotal int64) int64 {
	if available <= 0 || orderTotal <= 0 {
		return 0
	}
	limit := orderTotal / maxRedeemDivisor
	if available < limit {
		return available
	}
	return limit
}

// Clamp caps a requested redemption to what the balance and order allow.
func Clamp(requested, available, orderTotal int64) int64 {
	if requested <= 0 {
		return 0
	}
	max := MaxRedeemable(available, orderTotal)
	if requested > max {
		return max
	}
	return requested
}

// Value converts redeemed points into currency units.
func Value(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return points * PointValue
}

// NetDelta is the single balance change applied at finalization.
func NetDelta(earned, used int64) int64 {
	return earned - used
}
