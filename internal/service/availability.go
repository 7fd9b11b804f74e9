package service

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/utils"
)

type Slot struct {
	Start time.Time
	End   time.Time
}

// SlotInput is everything the calculator needs. It holds no store handles, so
// the same input always yields the same slots.
type SlotInput struct {
	Service   *db.Service
	Location  *time.Location
	Rules     []db.WorkingHoursRule
	Blackouts []db.BlackoutWindow
	Bookings  []db.Booking
	From      time.Time
	To        time.Time
	Now       time.Time
	LeadTime  time.Duration
}

// ComputeSlots lazily yields the slots offered in [in.From, in.To), in
// chronological order. Ranging over the sequence again recomputes it.
func ComputeSlots(in SlotInput) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		dur, step := in.Service.Duration(), in.Service.Step()
		if dur <= 0 || step <= 0 || !in.From.Before(in.To) {
			return
		}
		earliest := in.Now.Add(in.LeadTime)

		cuts := make([]utils.Interval, 0, len(in.Blackouts)+len(in.Bookings))
		for _, w := range in.Blackouts {
			cuts = append(cuts, utils.Interval{Start: w.StartTime, End: w.EndTime})
		}
		// A new booking's occupied interval must not touch an existing one, so the
		// existing interval grows by this service's buffers on the opposite sides.
		for _, b := range in.Bookings {
			occupied := utils.Interval{Start: b.OccupiedStart(), End: b.OccupiedEnd()}
			cuts = append(cuts, occupied.Expand(in.Service.BufferAfter(), in.Service.BufferBefore()))
		}

		for _, window := range workingWindows(in.Rules, in.Location, in.From, in.To) {
			for _, piece := range utils.Subtract(window.Interval, cuts) {
				begin := piece.Start
				if begin.Before(in.From) {
					begin = in.From
				}
				t := firstOnGrid(window.Anchor, step, begin)
				for ; !t.Add(dur).After(piece.End); t = t.Add(step) {
					if t.Before(in.From) || t.Add(dur).After(in.To) || t.Before(earliest) {
						continue
					}
					if !yield(Slot{Start: t, End: t.Add(dur)}) {
						return
					}
				}
			}
		}
	}
}

// firstOnGrid returns the first instant at or after t on the grid anchor + n*step.
func firstOnGrid(anchor time.Time, step time.Duration, t time.Time) time.Time {
	n := t.Sub(anchor) / step
	first := anchor.Add(n * step)
	if first.Before(t) {
		first = first.Add(step)
	}
	return first
}

// chainLookaround is how far past the query the weekly rules are expanded so
// that a chain of touching windows is always seen from its real start.
const chainLookaround = 8 * 24 * time.Hour

// gridWindow is a merged working window and the instant its slot grid counts from.
type gridWindow struct {
	utils.Interval
	Anchor time.Time
}

// workingWindows expands the weekly rules into absolute, merged windows that
// overlap [from, to). Wall-clock bounds are built in the rule's zone first, so
// DST shifts move the instants and not the local hours.
//
// Each grid is anchored at the start of its merged window, found by expanding
// well beyond the query, so the same instant is offered whatever range asks
// for it. A window at least a week long repeats forever and has no start; its
// grid is anchored at the Unix epoch.
func workingWindows(rules []db.WorkingHoursRule, orgLoc *time.Location, from, to time.Time) []gridWindow {
	lo, hi := from.Add(-chainLookaround), to.Add(chainLookaround)
	var windows []utils.Interval
	for _, r := range rules {
		if r.StartMinute >= r.EndMinute {
			continue
		}
		loc := orgLoc
		if r.Timezone != "" {
			if l, err := time.LoadLocation(r.Timezone); err == nil {
				loc = l
			}
		}
		if loc == nil {
			loc = time.UTC
		}

		first := lo.In(loc)
		last := hi.In(loc)
		day := time.Date(first.Year(), first.Month(), first.Day()-1, 0, 0, 0, 0, loc)
		end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)
		for ; !day.After(end); day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc) {
			if day.Weekday() != r.DayOfWeek {
				continue
			}
			windows = append(windows, utils.Interval{
				Start: time.Date(day.Year(), day.Month(), day.Day(), r.StartMinute/60, r.StartMinute%60, 0, 0, loc),
				End:   time.Date(day.Year(), day.Month(), day.Day(), r.EndMinute/60, r.EndMinute%60, 0, 0, loc),
			})
		}
	}

	query := utils.Interval{Start: from, End: to}
	var out []gridWindow
	for _, w := range utils.Merge(windows) {
		if !w.Overlaps(query) {
			continue
		}
		anchor := w.Start
		if w.End.Sub(w.Start) >= 7*24*time.Hour {
			anchor = time.Unix(0, 0)
		}
		out = append(out, gridWindow{Interval: w, Anchor: anchor})
	}
	return out
}

type AvailabilityService struct {
	Calendar    repository.CalendarStore
	Bookings    repository.BookingStore
	MinLeadTime time.Duration
	MaxRange    time.Duration
	Now         Clock
}

func NewAvailabilityService(calendar repository.CalendarStore, bookings repository.BookingStore, minLeadTime, maxRange time.Duration, now Clock) *AvailabilityService {
	return &AvailabilityService{Calendar: calendar, Bookings: bookings, MinLeadTime: minLeadTime, MaxRange: maxRange, Now: now}
}

// Slots returns the slots of serviceID that can be held right now within [from, to).
func (s *AvailabilityService) Slots(ctx context.Context, serviceID string, from, to time.Time) ([]Slot, error) {
	if !from.Before(to) {
		return nil, apperrors.ErrInvalidRange.WithMessage("from must be before to")
	}
	if s.MaxRange > 0 && to.Sub(from) > s.MaxRange {
		return nil, apperrors.ErrInvalidRange.WithMessage(fmt.Sprintf("range cannot exceed %d days", int(s.MaxRange.Hours()/24)))
	}

	svc, org, err := s.loadService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	now := s.Now.now()
	in, err := s.input(ctx, svc, org, from, to, now)
	if err != nil {
		return nil, err
	}
	bookings, err := s.Bookings.ListBlockingBookings(ctx, svc.ID, from.Add(-svc.BufferBefore()), to.Add(svc.BufferAfter()), now)
	if err != nil {
		return nil, fmt.Errorf("error loading bookings: %w", err)
	}
	in.Bookings = bookings

	slots := slices.Collect(ComputeSlots(in))
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// IsOffered reports whether start is a slot the calendar offers for svc at
// now, ignoring existing bookings. Exclusivity is the store's job.
func (s *AvailabilityService) IsOffered(ctx context.Context, svc *db.Service, org *db.Organization, start, now time.Time) (bool, error) {
	in, err := s.input(ctx, svc, org, start, start.Add(svc.Duration()), now)
	if err != nil {
		return false, err
	}
	for slot := range ComputeSlots(in) {
		return slot.Start.Equal(start), nil
	}
	return false, nil
}

func (s *AvailabilityService) loadService(ctx context.Context, serviceID string) (*db.Service, *db.Organization, error) {
	svc, err := s.Calendar.GetService(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if !svc.Active {
		return nil, nil, fmt.Errorf("service %s is inactive: %w", serviceID, apperrors.ErrServiceNotFound)
	}
	org, err := s.Calendar.GetOrganization(ctx, svc.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return svc, org, nil
}

func (s *AvailabilityService) input(ctx context.Context, svc *db.Service, org *db.Organization, from, to, now time.Time) (SlotInput, error) {
	rules, err := s.Calendar.ListWorkingHours(ctx, org.ID, svc.ID)
	if err != nil {
		return SlotInput{}, fmt.Errorf("error loading working hours: %w", err)
	}
	blackouts, err := s.Calendar.ListBlackouts(ctx, org.ID, svc.ID, from, to)
	if err != nil {
		return SlotInput{}, fmt.Errorf("error loading blackouts: %w", err)
	}
	return SlotInput{
		Service:   svc,
		Location:  org.Location(),
		Rules:     rules,
		Blackouts: blackouts,
		From:      from,
		To:        to,
		Now:       now,
		LeadTime:  s.leadTime(svc),
	}, nil
}

func (s *AvailabilityService) leadTime(svc *db.Service) time.Duration {
	own := time.Duration(svc.LeadTimeMinutes) * time.Minute
	if own > s.MinLeadTime {
		return own
	}
	return s.MinLeadTime
}
