package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"slotkeeper/internal/db"
)

func TestPlatformFeePercent(t *testing.T) {
	tests := []struct {
		plan db.Plan
		want int64
	}{
		{db.PlanFree, 5},
		{db.PlanPro, 3},
		{db.PlanBusiness, 2},
		{"business", 2},
		{"enterprise", 5},
		{"", 5},
	}
	fees := NewFeePolicy()
	for _, tt := range tests {
		assert.Equal(t, tt.want, fees.PlatformFeePercent(tt.plan), "plan %q", tt.plan)
	}
}

func TestPlatformFeeRounding(t *testing.T) {
	fees := NewFeePolicy()
	assert.Equal(t, int64(250), fees.PlatformFee(db.PlanFree, 5000))
	assert.Equal(t, int64(1), fees.PlatformFee(db.PlanPro, 50))  // 1.5 rounds up
	assert.Equal(t, int64(0), fees.PlatformFee(db.PlanBusiness, 24))
	assert.Equal(t, int64(1), fees.PlatformFee(db.PlanBusiness, 25))
	assert.Equal(t, int64(0), fees.PlatformFee(db.PlanFree, 0))
}

func TestRoutingReady(t *testing.T) {
	fees := NewFeePolicy()
	org := &db.Organization{PaymentAccountID: "acct_1", OnboardingStatus: db.OnboardingActive}
	assert.True(t, fees.Routing(org).Ready())

	org.OnboardingStatus = db.OnboardingRestricted
	assert.False(t, fees.Routing(org).Ready())

	org = &db.Organization{OnboardingStatus: db.OnboardingActive}
	assert.False(t, fees.Routing(org).Ready())
}
