package model

// CalendarCell is one day of a week or month grid.
type CalendarCell struct {
	Date         Date          `json:"date"`
	Appointments []Appointment `json:"appointments"`
	InFocus      bool          `json:"in_focus"`
}

type CalendarView struct {
	Anchor Date           `json:"anchor"`
	Start  Date           `json:"start"`
	End    Date           `json:"end"`
	Cells  []CalendarCell `json:"cells"`
}
