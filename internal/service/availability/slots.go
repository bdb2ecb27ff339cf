package availability

import (
	"time"

	"github.com/jwalitptl/booking-engine/internal/model"
)

// windowSlots returns slot starts within the window where a slot of length
// step fits entirely, is not already taken, and does not start before notBefore.
func windowSlots(w model.ScheduleWindow, step time.Duration, taken map[model.TimeOfDay]bool, notBefore model.TimeOfDay) []model.TimeOfDay {
	if step <= 0 || !w.IsOpen || w.End <= w.Start {
		return nil
	}

	var slots []model.TimeOfDay
	for t := w.Start; t.Add(step) <= w.End; t = t.Add(step) {
		if t < notBefore {
			continue
		}
		if taken[t] {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
