package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository/memory"
	"github.com/jwalitptl/booking-engine/pkg/errors"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	rows := []model.Appointment{
		{PractitionerID: 1, RequesterID: 2, Date: model.NewDate(2025, 1, 6), Time: model.MustTimeOfDay("09:00"), Status: model.AppointmentStatusPending},
		{PractitionerID: 1, RequesterID: 3, Date: model.NewDate(2025, 1, 6), Time: model.MustTimeOfDay("10:00"), Status: model.AppointmentStatusConfirmed},
		{PractitionerID: 1, RequesterID: 2, Date: model.NewDate(2025, 1, 31), Time: model.MustTimeOfDay("09:00"), Status: model.AppointmentStatusPending},
		{PractitionerID: 4, RequesterID: 2, Date: model.NewDate(2025, 1, 7), Time: model.MustTimeOfDay("09:00"), Status: model.AppointmentStatusPending},
	}
	for i := range rows {
		require.NoError(t, store.Appointments().Create(context.Background(), &rows[i]))
	}
	return store
}

func TestWeekScopedToPractitioner(t *testing.T) {
	svc := NewService(seed(t).Appointments())
	doctor := model.Actor{Role: model.RolePractitioner, ID: 1}

	view, err := svc.Week(context.Background(), doctor, doctor, model.NewDate(2025, 1, 8))
	require.NoError(t, err)

	require.Len(t, view.Cells, WeekCells)
	require.Len(t, view.Cells[0].Appointments, 2)
	assert.Equal(t, model.MustTimeOfDay("09:00"), view.Cells[0].Appointments[0].Time)
	assert.Empty(t, view.Cells[1].Appointments, "other practitioner's booking leaked")
}

func TestMonthScopedToRequester(t *testing.T) {
	svc := NewService(seed(t).Appointments())
	patient := model.Actor{Role: model.RoleRequester, ID: 2}

	view, err := svc.Month(context.Background(), patient, patient, model.NewDate(2025, 1, 20))
	require.NoError(t, err)

	require.Len(t, view.Cells, MonthCells)
	total := 0
	for _, c := range view.Cells {
		total += len(c.Appointments)
	}
	assert.Equal(t, 3, total)
}

func TestCalendarAccess(t *testing.T) {
	svc := NewService(seed(t).Appointments())
	ctx := context.Background()
	doctor := model.Actor{Role: model.RolePractitioner, ID: 1}
	other := model.Actor{Role: model.RolePractitioner, ID: 4}

	_, err := svc.Week(ctx, other, doctor, model.NewDate(2025, 1, 8))
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	view, err := svc.Week(ctx, model.Actor{Role: model.RoleAdmin, ID: 9}, doctor, model.NewDate(2025, 1, 8))
	require.NoError(t, err)
	assert.Len(t, view.Cells[0].Appointments, 2)

	_, err = svc.Month(ctx, doctor, doctor, model.Date{})
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestCalendarIsRecomputedPerCall(t *testing.T) {
	store := seed(t)
	svc := NewService(store.Appointments())
	doctor := model.Actor{Role: model.RolePractitioner, ID: 1}
	anchor := model.NewDate(2025, 1, 8)

	before, err := svc.Week(context.Background(), doctor, doctor, anchor)
	require.NoError(t, err)
	assert.Empty(t, before.Cells[2].Appointments)

	require.NoError(t, store.Appointments().Create(context.Background(), &model.Appointment{
		PractitionerID: 1, RequesterID: 2, Date: anchor, Time: model.MustTimeOfDay("11:00"),
		Status: model.AppointmentStatusPending,
	}))

	after, err := svc.Week(context.Background(), doctor, doctor, anchor)
	require.NoError(t, err)
	assert.Len(t, after.Cells[2].Appointments, 1)
}
