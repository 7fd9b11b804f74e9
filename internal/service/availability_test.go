package service

import (
	"context"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

func mondayRule(start, end int) db.WorkingHoursRule {
	return db.WorkingHoursRule{DayOfWeek: time.Monday, StartMinute: start, EndMinute: end}
}

func starts(slots []Slot) []time.Time {
	out := make([]time.Time, len(slots))
	for i, s := range slots {
		out[i] = s.Start
	}
	return out
}

func TestComputeSlots_ThirtyMinuteServiceInOneHourWindow(t *testing.T) {
	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 30},
		Location: time.UTC,
		Rules:    []db.WorkingHoursRule{mondayRule(9*60, 10*60)},
		From:     monday,
		To:       monday.Add(24 * time.Hour),
		Now:      monday.Add(-time.Hour),
	}

	slots := slices.Collect(ComputeSlots(in))

	require.Len(t, slots, 2)
	assert.Equal(t, Slot{Start: at(9, 0), End: at(9, 30)}, slots[0])
	assert.Equal(t, Slot{Start: at(9, 30), End: at(10, 0)}, slots[1])
}

func TestComputeSlots_Granularity(t *testing.T) {
	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 30, GranularityMinutes: 15},
		Location: time.UTC,
		Rules:    []db.WorkingHoursRule{mondayRule(9*60, 10*60)},
		From:     monday,
		To:       monday.Add(24 * time.Hour),
		Now:      monday.Add(-time.Hour),
	}

	assert.Equal(t, []time.Time{at(9, 0), at(9, 15), at(9, 30)}, starts(slices.Collect(ComputeSlots(in))))
}

func TestComputeSlots_BlackoutSplitsWindow(t *testing.T) {
	in := SlotInput{
		Service:   &db.Service{DurationMinutes: 30},
		Location:  time.UTC,
		Rules:     []db.WorkingHoursRule{mondayRule(9*60, 11*60)},
		Blackouts: []db.BlackoutWindow{{StartTime: at(9, 10), EndTime: at(9, 20)}},
		From:      monday,
		To:        monday.Add(24 * time.Hour),
		Now:       monday.Add(-time.Hour),
	}

	// The grid stays anchored at 09:00, so the piece after the blackout starts at 09:30.
	assert.Equal(t, []time.Time{at(9, 30), at(10, 0), at(10, 30)}, starts(slices.Collect(ComputeSlots(in))))
}

func TestComputeSlots_BookingsAndBuffers(t *testing.T) {
	svc := &db.Service{DurationMinutes: 30, BufferAfterMin: 15}
	existing := db.Booking{
		StartTime:      at(10, 0),
		EndTime:        at(10, 30),
		BufferAfterMin: 15,
		Status:         db.StatusConfirmed,
	}
	in := SlotInput{
		Service:  svc,
		Location: time.UTC,
		Rules:    []db.WorkingHoursRule{mondayRule(9*60, 12*60)},
		Bookings: []db.Booking{existing},
		From:     monday,
		To:       monday.Add(24 * time.Hour),
		Now:      monday.Add(-time.Hour),
	}

	got := starts(slices.Collect(ComputeSlots(in)))

	// 09:30 would end at 10:00 and its buffer would run into the booking.
	assert.Equal(t, []time.Time{at(9, 0), at(11, 0), at(11, 30)}, got)
}

func TestComputeSlots_LeadTimeAndRange(t *testing.T) {
	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 30},
		Location: time.UTC,
		Rules:    []db.WorkingHoursRule{mondayRule(9*60, 12*60)},
		From:     monday,
		To:       at(11, 0),
		Now:      at(9, 10),
		LeadTime: 30 * time.Minute,
	}

	assert.Equal(t, []time.Time{at(10, 0), at(10, 30)}, starts(slices.Collect(ComputeSlots(in))))
}

func TestComputeSlots_SpringForwardKeepsWallClock(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	// Clocks jump from 02:00 to 03:00 on Sunday 31 March 2030.
	day := time.Date(2030, time.March, 31, 0, 0, 0, 0, madrid)

	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 60},
		Location: madrid,
		Rules: []db.WorkingHoursRule{
			{DayOfWeek: time.Sunday, StartMinute: 9 * 60, EndMinute: 10 * 60},
		},
		From: day,
		To:   day.Add(24 * time.Hour),
		Now:  day.Add(-24 * time.Hour),
	}

	slots := slices.Collect(ComputeSlots(in))
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2030, time.March, 31, 7, 0, 0, 0, time.UTC), slots[0].Start.UTC())
	assert.Equal(t, 9, slots[0].Start.In(madrid).Hour())

	// A window across the gap is three hours long in absolute time.
	in.Rules[0].StartMinute, in.Rules[0].EndMinute = 60, 5*60
	slots = slices.Collect(ComputeSlots(in))
	var local []int
	for _, s := range slots {
		local = append(local, s.Start.In(madrid).Hour())
	}
	assert.Equal(t, []int{1, 3, 4}, local)
}

func TestComputeSlots_GridDoesNotDependOnRange(t *testing.T) {
	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 45},
		Location: time.UTC,
		Rules: []db.WorkingHoursRule{
			mondayRule(22*60, 24*60),
			{DayOfWeek: time.Tuesday, StartMinute: 0, EndMinute: 2 * 60},
		},
		From: monday,
		To:   monday.Add(48 * time.Hour),
		Now:  monday.Add(-time.Hour),
	}
	wide := starts(slices.Collect(ComputeSlots(in)))
	assert.Equal(t, []time.Time{at(22, 0), at(22, 45), at(23, 30), at(24, 15), at(25, 0)}, wide)

	in.From = monday.Add(24 * time.Hour)
	assert.Equal(t, []time.Time{at(24, 15), at(25, 0)}, starts(slices.Collect(ComputeSlots(in))))

	for _, start := range wide {
		in.From, in.To = start, start.Add(45*time.Minute)
		assert.Equal(t, []time.Time{start}, starts(slices.Collect(ComputeSlots(in))), "slot %s", start)
	}
}

func TestComputeSlots_ContinuousScheduleUsesFixedGrid(t *testing.T) {
	var rules []db.WorkingHoursRule
	for day := time.Sunday; day <= time.Saturday; day++ {
		rules = append(rules, db.WorkingHoursRule{DayOfWeek: day, StartMinute: 0, EndMinute: 24 * 60})
	}
	in := SlotInput{
		Service:  &db.Service{DurationMinutes: 35},
		Location: time.UTC,
		Rules:    rules,
		From:     at(9, 0),
		To:       at(12, 0),
		Now:      monday.Add(-time.Hour),
	}
	first := starts(slices.Collect(ComputeSlots(in)))
	require.NotEmpty(t, first)
	for _, s := range first {
		assert.Zero(t, s.Sub(time.Unix(0, 0))%(35*time.Minute))
	}

	in.From = at(10, 0)
	later := starts(slices.Collect(ComputeSlots(in)))
	require.NotEmpty(t, later)
	assert.Contains(t, first, later[0])
}

func TestComputeSlots_Restartable(t *testing.T) {
	seq := ComputeSlots(SlotInput{
		Service:  &db.Service{DurationMinutes: 30},
		Location: time.UTC,
		Rules:    []db.WorkingHoursRule{mondayRule(9*60, 12*60)},
		From:     monday,
		To:       monday.Add(24 * time.Hour),
		Now:      monday.Add(-time.Hour),
	})

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Len(t, first, 6)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Start.Before(first[i].Start))
	}
}

func TestAvailability_InvalidRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.avail.Slots(ctx, testServiceID, at(10, 0), at(9, 0))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)

	_, err = h.avail.Slots(ctx, testServiceID, monday, monday.Add(90*24*time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestAvailability_UnknownOrInactiveService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.avail.Slots(ctx, "missing", monday, monday.Add(24*time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrServiceNotFound)

	h.store.PutService(db.Service{ID: "off", OrganizationID: testOrgID, DurationMinutes: 30})
	_, err = h.avail.Slots(ctx, "off", monday, monday.Add(24*time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrServiceNotFound)
}

func TestAvailability_ServiceRulesOverrideOrganizationRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svcID := testServiceID
	require.NoError(t, h.store.CreateWorkingHours(ctx, &db.WorkingHoursRule{
		ID:             "own",
		OrganizationID: testOrgID,
		ServiceID:      &svcID,
		DayOfWeek:      time.Monday,
		StartMinute:    14 * 60,
		EndMinute:      15 * 60,
	}))

	slots, err := h.avail.Slots(ctx, testServiceID, monday, monday.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(14, 0), at(14, 30)}, starts(slots))
}

func TestAvailability_EmptyResultIsNotNil(t *testing.T) {
	h := newHarness(t)

	slots, err := h.avail.Slots(context.Background(), testServiceID, monday.Add(24*time.Hour), monday.Add(48*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}
