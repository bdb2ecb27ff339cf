package calendar

import (
	"github.com/jwalitptl/booking-engine/internal/model"
)

const (
	WeekCells  = 7
	MonthCells = 42
)

// BuildWeek returns the Monday-started week containing anchor. Every cell is in focus.
func BuildWeek(anchor model.Date) model.CalendarView {
	start := anchor.StartOfWeek()
	return build(anchor, start, WeekCells, func(model.Date) bool { return true })
}

// BuildMonth returns a fixed six-row grid for anchor's month, starting on the
// Monday on or before the first of the month. Days of adjacent months fill
// the leading and trailing cells and are out of focus.
func BuildMonth(anchor model.Date) model.CalendarView {
	first := anchor.FirstOfMonth()
	return build(anchor, first.StartOfWeek(), MonthCells, func(d model.Date) bool {
		return d.Month() == first.Month() && d.Year() == first.Year()
	})
}

func build(anchor, start model.Date, n int, inFocus func(model.Date) bool) model.CalendarView {
	cells := make([]model.CalendarCell, n)
	for i := range cells {
		d := start.AddDays(i)
		cells[i] = model.CalendarCell{
			Date:         d,
			Appointments: []model.Appointment{},
			InFocus:      inFocus(d),
		}
	}
	return model.CalendarView{
		Anchor: anchor,
		Start:  start,
		End:    start.AddDays(n - 1),
		Cells:  cells,
	}
}

// Fill buckets appointments into the cell with the same date. Appointments
// outside the grid are dropped. The view is copied, not mutated.
func Fill(view model.CalendarView, appointments []model.Appointment) model.CalendarView {
	index := make(map[model.Date]int, len(view.Cells))
	cells := make([]model.CalendarCell, len(view.Cells))
	for i, c := range view.Cells {
		cells[i] = model.CalendarCell{Date: c.Date, InFocus: c.InFocus, Appointments: []model.Appointment{}}
		index[c.Date] = i
	}
	for _, apt := range appointments {
		if i, ok := index[apt.Date]; ok {
			cells[i].Appointments = append(cells[i].Appointments, apt)
		}
	}
	view.Cells = cells
	return view
}
