package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortToggle(t *testing.T) {
	s := DefaultSort()
	assert.Equal(t, SortOrder{Field: SortByDate, Dir: SortDesc}, s)

	s = s.Toggle(SortByDate)
	assert.Equal(t, SortAsc, s.Dir)
	s = s.Toggle(SortByDate)
	assert.Equal(t, SortDesc, s.Dir)

	s = s.Toggle(SortByStatus)
	assert.Equal(t, SortOrder{Field: SortByStatus, Dir: SortAsc}, s)
}

func TestFilterUpcomingAndPast(t *testing.T) {
	today := NewDate(2025, 1, 5)
	past := &Appointment{Date: NewDate(2025, 1, 1), Status: AppointmentStatusConfirmed}
	future := &Appointment{Date: NewDate(2025, 1, 10), Status: AppointmentStatusConfirmed}
	sameDay := &Appointment{Date: today, Status: AppointmentStatusPending}

	upcoming := AppointmentFilter{Scope: TimeScopeUpcoming, Today: today}
	assert.False(t, upcoming.Matches(past))
	assert.True(t, upcoming.Matches(future))
	assert.True(t, upcoming.Matches(sameDay))

	pastOnly := AppointmentFilter{Scope: TimeScopePast, Today: today}
	assert.True(t, pastOnly.Matches(past))
	assert.False(t, pastOnly.Matches(sameDay))
}

func TestFilterStatusAndParties(t *testing.T) {
	apt := &Appointment{PractitionerID: 1, RequesterID: 2, Status: AppointmentStatusCancelled, Date: NewDate(2025, 2, 1)}

	assert.True(t, AppointmentFilter{}.Matches(apt))
	assert.True(t, AppointmentFilter{PractitionerID: 1, RequesterID: 2}.Matches(apt))
	assert.False(t, AppointmentFilter{PractitionerID: 3}.Matches(apt))
	assert.False(t, AppointmentFilter{Status: AppointmentStatusConfirmed}.Matches(apt))
	assert.False(t, AppointmentFilter{ActiveOnly: true}.Matches(apt))
	assert.False(t, AppointmentFilter{From: NewDate(2025, 2, 2)}.Matches(apt))
	assert.True(t, AppointmentFilter{From: NewDate(2025, 2, 1), To: NewDate(2025, 2, 1)}.Matches(apt))
}

func TestActorOwns(t *testing.T) {
	apt := &Appointment{PractitionerID: 1, RequesterID: 2}
	assert.True(t, Actor{Role: RoleAdmin}.Owns(apt))
	assert.True(t, Actor{Role: RolePractitioner, ID: 1}.Owns(apt))
	assert.False(t, Actor{Role: RolePractitioner, ID: 2}.Owns(apt))
	assert.True(t, Actor{Role: RoleRequester, ID: 2}.Owns(apt))
	assert.False(t, Actor{Role: "GUEST", ID: 2}.Owns(apt))
}
