package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"slotkeeper/internal/db"
	"slotkeeper/internal/repository/memory"
)

const (
	testOrgID     = "11111111-1111-1111-1111-111111111111"
	testServiceID = "22222222-2222-2222-2222-222222222222"
	testAccountID = "acct_test"
)

// Monday 7 January 2030.
var monday = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu            sync.Mutex
	sessions      []SessionRequest
	expired       []string
	refunds       []RefundRequest
	refundErr     error
	accountStatus db.OnboardingStatus
}

func (g *fakeGateway) OpenSession(_ context.Context, req SessionRequest) (*PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return &PaymentSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *fakeGateway) ExpireSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, sessionID)
	return nil
}

func (g *fakeGateway) ParseEvent(_ []byte, _ string) (*db.PaymentEvent, error) {
	return nil, errors.New("not supported")
}

func (g *fakeGateway) AccountStatus(_ context.Context, _ string) (db.OnboardingStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accountStatus == "" {
		return db.OnboardingPending, nil
	}
	return g.accountStatus, nil
}

func (g *fakeGateway) Refund(_ context.Context, req RefundRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return fmt.Sprintf("re_test_%d", len(g.refunds)), nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) Notify(_ context.Context, b *db.Booking, kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b.ID+":"+kind)
	return nil
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if strings.HasSuffix(call, ":"+kind) {
			c++
		}
	}
	return c
}

type harness struct {
	store    *memory.Store
	clock    *testClock
	gateway  *fakeGateway
	notifier *fakeNotifier
	avail    *AvailabilityService
	holds    *HoldService
	payments *PaymentService
	jobs     *JobService
}

func int64Ptr(v int64) *int64 { return &v }

// newHarness seeds an active organization with a priced 30 minute service open
// on Mondays 09:00-12:00 UTC. The clock starts a week before.
func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	store.PutOrganization(db.Organization{
		ID:               testOrgID,
		Slug:             "studio",
		Name:             "Studio",
		Timezone:         "UTC",
		Plan:             db.PlanPro,
		PaymentAccountID: testAccountID,
		OnboardingStatus: db.OnboardingActive,
	})
	store.PutService(db.Service{
		ID:              testServiceID,
		OrganizationID:  testOrgID,
		Name:            "Haircut",
		DurationMinutes: 30,
		Price:           int64Ptr(5000),
		Currency:        "EUR",
		Active:          true,
	})
	addRule(t, store, time.Monday, 9*60, 12*60)

	clock := &testClock{now: monday.Add(-7 * 24 * time.Hour)}
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	logger := zap.NewNop()

	avail := NewAvailabilityService(store, store, 0, 62*24*time.Hour, clock.Now)
	payments := &PaymentService{
		Calendar:        store,
		Bookings:        store,
		Events:          store,
		Gateway:         gateway,
		Fees:            NewFeePolicy(),
		Notifier:        notifier,
		PublicBaseURL:   "https://book.example",
		DefaultCurrency: "eur",
		Logger:          logger,
		Now:             clock.Now,
	}
	return &harness{
		store:    store,
		clock:    clock,
		gateway:  gateway,
		notifier: notifier,
		avail:    avail,
		holds:    NewHoldService(store, store, avail, gateway, logger, clock.Now),
		payments: payments,
		jobs: &JobService{
			Sweeper:          store,
			Payments:         payments,
			Gateway:          gateway,
			MaxEventAttempts: 5,
			Logger:           logger,
			Now:              clock.Now,
		},
	}
}

func addRule(t *testing.T, store *memory.Store, day time.Weekday, start, end int) {
	t.Helper()
	err := store.CreateWorkingHours(context.Background(), &db.WorkingHoursRule{
		ID:             fmt.Sprintf("rule-%d-%d-%d", day, start, end),
		OrganizationID: testOrgID,
		DayOfWeek:      day,
		StartMinute:    start,
		EndMinute:      end,
	})
	if err != nil {
		t.Fatalf("seed working hours: %v", err)
	}
}

func testCustomer() db.Customer {
	return db.Customer{Name: "Ana Ruiz", Email: "ana@example.com", Phone: "+34600111222", Language: "es"}
}
