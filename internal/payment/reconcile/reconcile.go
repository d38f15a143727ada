package reconcile

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/payment/domain"
)

const defaultMinorPerMajor = 100

// Reconciler resolves the commerce total against the gateway amount using
// the live reconcile policy.
type Reconciler struct {
	policy *config.ReconcileConfigHolder
}

func NewReconciler(policy *config.ReconcileConfigHolder) *Reconciler {
	return &Reconciler{policy: policy}
}

func (r *Reconciler) Reconcile(orderTotal decimal.Decimal, gatewayMinor int64, currency string) (domain.Reconciliation, error) {
	var policy config.ReconcilePolicy
	if r == nil {
		policy = config.DefaultReconcilePolicy()
	} else {
		policy = r.policy.Get()
	}
	return ReconcileScaled(orderTotal, gatewayMinor, policy.ToleranceMinor, policy.MinorPerMajor(currency))
}

// Reconcile assumes two decimal places per major unit.
func Reconcile(orderTotal decimal.Decimal, gatewayMinor int64, tolerance int64) (domain.Reconciliation, error) {
	return ReconcileScaled(orderTotal, gatewayMinor, tolerance, defaultMinorPerMajor)
}

// ReconcileScaled picks the canonical minor amount. The order total is
// ambiguous: it may already be minor units or it may be major units. A
// positive gateway amount always wins when neither reading matches it.
func ReconcileScaled(orderTotal decimal.Decimal, gatewayMinor, tolerance, minorPerMajor int64) (domain.Reconciliation, error) {
	if tolerance < 0 {
		tolerance = 0
	}
	if minorPerMajor <= 0 {
		minorPerMajor = defaultMinorPerMajor
	}
	if gatewayMinor < 0 {
		gatewayMinor = 0
	}
	if orderTotal.IsNegative() {
		orderTotal = decimal.Zero
	}
	scale := decimal.NewFromInt(minorPerMajor)

	if gatewayMinor > 0 {
		if orderTotal.IsPositive() {
			if within(orderTotal.Round(0).IntPart(), gatewayMinor, tolerance) {
				return result(true, gatewayMinor, minorPerMajor, domain.ReasonGatewayMinorMatchesOrderTotal), nil
			}
			if within(orderTotal.Mul(scale).Round(0).IntPart(), gatewayMinor, tolerance) {
				return result(true, gatewayMinor, minorPerMajor, domain.ReasonOrderTotalMajorUnits), nil
			}
		}
		return result(false, gatewayMinor, minorPerMajor, domain.ReasonGatewayAmountTrusted), nil
	}

	if !orderTotal.IsPositive() {
		return domain.Reconciliation{}, domain.ErrMissingAmount
	}

	// Whole totals are read as minor units; fractional ones can only be major.
	minor := orderTotal.IntPart()
	if !orderTotal.Equal(orderTotal.Truncate(0)) {
		minor = orderTotal.Mul(scale).Round(0).IntPart()
	}
	if minor <= 0 {
		return domain.Reconciliation{}, domain.ErrMissingAmount
	}
	return result(false, minor, minorPerMajor, domain.ReasonOrderTotalFallback), nil
}

func within(a, b, tolerance int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func result(matched bool, minor, minorPerMajor int64, reason string) domain.Reconciliation {
	return domain.Reconciliation{
		Matched:     matched,
		AmountMinor: minor,
		AmountMajor: ToMajor(minor, minorPerMajor),
		Reason:      reason,
	}
}

// ToMajor converts minor units to a major-unit decimal.
func ToMajor(minor, minorPerMajor int64) decimal.Decimal {
	if minorPerMajor <= 0 {
		minorPerMajor = defaultMinorPerMajor
	}
	return decimal.NewFromInt(minor).DivRound(decimal.NewFromInt(minorPerMajor), Places(minorPerMajor))
}

// Places is the number of decimal places a major amount carries.
func Places(minorPerMajor int64) int32 {
	if minorPerMajor <= 0 {
		minorPerMajor = defaultMinorPerMajor
	}
	return int32(math.Round(math.Log10(float64(minorPerMajor))))
}
