package service

import (
	"math"
	"time"
)

type PlannerConfig struct {
	DailyCap   int
	SendHour   int
	SendMinute int
	SendSecond int
}

// Planner assigns send times to batches under a daily cap, on business days,
// at a fixed local time of day.
//
// Local times are handled as UTC instants shifted by the group offset, so
// calendar and weekday checks in the shifted value are checks in local time.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{cfg: cfg}
}

// PlanState is carried through one whole planning run. Offset groups share it.
type PlanState struct {
	// Cursor is the UTC instant the next batch will be assigned.
	Cursor time.Time
	// DailyCount is how many emails are already planned for Cursor's day.
	DailyCount int
	// Offset of the group being planned.
	Offset time.Duration
}

// Start positions the cursor on the next business day at now.
func (p *Planner) Start(now time.Time) *PlanState {
	return &PlanState{Cursor: NextBusinessDay(now.UTC())}
}

// EnterGroup moves the cursor to the send time of a new offset group: the
// configured local time on the cursor's local day, or on the next business
// day once that time has passed. The daily count carries over only when the
// new group's send day is the same calendar day the cursor was on, each read
// in its own group's frame.
func (p *Planner) EnterGroup(s *PlanState, offsetHours float64) {
	prevDay := s.Cursor.Add(s.Offset)
	s.Offset = OffsetDuration(offsetHours)

	anchor := s.Cursor.Add(s.Offset)
	target := time.Date(anchor.Year(), anchor.Month(), anchor.Day(),
		p.cfg.SendHour, p.cfg.SendMinute, p.cfg.SendSecond, 0, time.UTC)
	if anchor.After(target) {
		target = target.AddDate(0, 0, 1)
	}
	target = NextBusinessDay(target)

	if !sameDay(target, prevDay) {
		s.DailyCount = 0
	}
	s.Cursor = target.Add(-s.Offset)
}

// Assign returns the send time for a batch of size emails. A batch that
// would push the day over the cap moves, with the cursor, to the next
// business day; a batch larger than the cap is still assigned whole.
func (p *Planner) Assign(s *PlanState, size int) time.Time {
	if s.DailyCount+size > p.cfg.DailyCap {
		local := s.Cursor.Add(s.Offset).AddDate(0, 0, 1)
		s.Cursor = NextBusinessDay(local).Add(-s.Offset)
		s.DailyCount = 0
	}
	s.DailyCount += size
	return s.Cursor
}

// OffsetDuration converts fractional hours to a whole-minute duration.
func OffsetDuration(hours float64) time.Duration {
	return time.Duration(math.Round(hours*60)) * time.Minute
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
