package model

import (
	"time"
)

// ScheduleWindow is one block of a practitioner's weekly opening hours.
// Start is inclusive and End exclusive.
type ScheduleWindow struct {
	PractitionerID int64        `db:"practitioner_id" json:"-"`
	DayOfWeek      time.Weekday `db:"day_of_week" json:"day_of_week"`
	Start          TimeOfDay    `db:"start_time" json:"start"`
	End            TimeOfDay    `db:"end_time" json:"end"`
	IsOpen         bool         `db:"is_open" json:"is_open"`
}

func (w ScheduleWindow) Contains(t TimeOfDay) bool {
	return w.IsOpen && w.Start <= t && t < w.End
}

type WeeklySchedule []ScheduleWindow

// OpenAt reports whether some open window on day contains t.
func (s WeeklySchedule) OpenAt(day time.Weekday, t TimeOfDay) bool {
	for _, w := range s {
		if w.DayOfWeek == day && w.Contains(t) {
			return true
		}
	}
	return false
}

// OpenWindows returns the open windows for day in declaration order.
func (s WeeklySchedule) OpenWindows(day time.Weekday) []ScheduleWindow {
	var out []ScheduleWindow
	for _, w := range s {
		if w.DayOfWeek == day && w.IsOpen && w.Start < w.End {
			out = append(out, w)
		}
	}
	return out
}

type Practitioner struct {
	ID        int64          `db:"id" json:"id"`
	FirstName string         `db:"first_name" json:"first_name"`
	LastName  string         `db:"last_name" json:"last_name"`
	Specialty string         `db:"specialty" json:"specialty,omitempty"`
	Schedule  WeeklySchedule `db:"-" json:"schedule"`
}

func (p *Practitioner) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Requester struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}
