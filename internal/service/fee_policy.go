package service

import (
	"strings"

	"slotkeeper/internal/db"
)

// FeePolicy maps an organization's plan to the platform's cut of each payment
// and tells the orchestrator where the rest of the money goes.
type FeePolicy struct{}

func NewFeePolicy() FeePolicy {
	return FeePolicy{}
}

func normalizePlan(plan db.Plan) db.Plan {
	switch db.Plan(strings.ToUpper(strings.TrimSpace(string(plan)))) {
	case db.PlanPro:
		return db.PlanPro
	case db.PlanBusiness:
		return db.PlanBusiness
	default:
		return db.PlanFree
	}
}

// PlatformFeePercent is 5% on FREE, 3% on PRO and 2% on BUSINESS. Unknown
// plans pay the FREE rate.
func (FeePolicy) PlatformFeePercent(plan db.Plan) int64 {
	switch normalizePlan(plan) {
	case db.PlanBusiness:
		return 2
	case db.PlanPro:
		return 3
	default:
		return 5
	}
}

// PlatformFee computes the fee in minor units, rounding half up.
func (p FeePolicy) PlatformFee(plan db.Plan, amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*p.PlatformFeePercent(plan) + 50) / 100
}

type AccountRouting struct {
	AccountID string
	Status    db.OnboardingStatus
}

// Ready reports whether payouts can be routed to the connected account.
func (r AccountRouting) Ready() bool {
	return r.AccountID != "" && r.Status == db.OnboardingActive
}

func (FeePolicy) Routing(org *db.Organization) AccountRouting {
	return AccountRouting{AccountID: org.PaymentAccountID, Status: org.OnboardingStatus}
}
