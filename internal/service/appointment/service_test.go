package appointment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-engine/internal/lock"
	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/internal/repository/memory"
	"github.com/jwalitptl/booking-engine/internal/service/availability"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/metrics"
)

// 2025-01-06 is a Monday.
var fixedNow = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

var (
	admin     = model.Actor{Role: model.RoleAdmin, ID: 1}
	doctor    = model.Actor{Role: model.RolePractitioner, ID: 1}
	patient   = model.Actor{Role: model.RoleRequester, ID: 2}
	stranger  = model.Actor{Role: model.RoleRequester, ID: 3}
	monday    = model.NewDate(2025, 1, 6)
	nineAM    = model.MustTimeOfDay("09:00")
	tenAM     = model.MustTimeOfDay("10:00")
	elevenAM  = model.MustTimeOfDay("11:00")
	afterHour = model.MustTimeOfDay("18:00")
)

type fixture struct {
	store *memory.Store
	svc   *Service
}

func newFixture(t *testing.T, outbox repository.OutboxRepository) *fixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	store := memory.NewStore().WithClock(clock)

	var week model.WeeklySchedule
	for d := time.Monday; d <= time.Friday; d++ {
		week = append(week, model.ScheduleWindow{
			DayOfWeek: d,
			Start:     model.MustTimeOfDay("09:00"),
			End:       model.MustTimeOfDay("17:00"),
			IsOpen:    true,
		})
	}
	store.AddPractitioner(model.Practitioner{ID: 1, FirstName: "Ada", LastName: "Lovelace", Schedule: week})
	store.AddPractitioner(model.Practitioner{ID: 4, FirstName: "Alan", LastName: "Turing", Schedule: week})
	store.AddRequester(model.Requester{ID: 2, FirstName: "Grace", LastName: "Hopper"})
	store.AddRequester(model.Requester{ID: 3, FirstName: "Edsger", LastName: "Dijkstra"})

	if outbox == nil {
		outbox = store.Outbox()
	}
	resolver := availability.NewResolver(store.Practitioners(), store.Appointments(),
		availability.WithClock(clock))

	svc := NewService(Deps{
		Appointments:  store.Appointments(),
		Practitioners: store.Practitioners(),
		Requesters:    store.Requesters(),
		Outbox:        outbox,
		Resolver:      resolver,
		Metrics:       metrics.NewNop(),
		Clock:         clock,
	})
	return &fixture{store: store, svc: svc}
}

func (f *fixture) book(t *testing.T, date model.Date, tod model.TimeOfDay) *model.Appointment {
	t.Helper()
	apt, err := f.svc.CreateAppointment(context.Background(), admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 2, Date: date, Time: tod,
	})
	require.NoError(t, err)
	return apt
}

func (f *fixture) events(t *testing.T) []*model.OutboxEvent {
	t.Helper()
	events, err := f.store.Outbox().GetPendingEventsWithLock(context.Background(), 0)
	require.NoError(t, err)
	return events
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t, nil)

	apt, err := f.svc.CreateAppointment(context.Background(), patient, &model.Appointment{
		PractitionerID: 1, Date: monday, Time: nineAM, Reason: "checkup",
		Status: model.AppointmentStatusCompleted,
	})
	require.NoError(t, err)

	assert.NotZero(t, apt.ID)
	assert.Equal(t, int64(2), apt.RequesterID)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, "Ada Lovelace", apt.PractitionerName)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, apt.ID, events[0].AggregateID)
}

func TestCreateAppointmentDoubleBooking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.book(t, monday, nineAM)

	_, err := f.svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 3, Date: monday, Time: nineAM,
	})
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	// a different practitioner at the same time is fine
	_, err = f.svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 4, RequesterID: 3, Date: monday, Time: nineAM,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, admin, first.ID)
	require.NoError(t, err)

	again, err := f.svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 3, Date: monday, Time: nineAM,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestCreateAppointmentRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Actor
		apt   model.Appointment
		code  errors.ErrorCode
	}{
		{"outside opening hours", admin, model.Appointment{PractitionerID: 1, RequesterID: 2, Date: monday, Time: afterHour}, errors.ErrValidation},
		{"weekend", admin, model.Appointment{PractitionerID: 1, RequesterID: 2, Date: model.NewDate(2025, 1, 11), Time: nineAM}, errors.ErrValidation},
		{"past date", admin, model.Appointment{PractitionerID: 1, RequesterID: 2, Date: model.NewDate(2025, 1, 3), Time: nineAM}, errors.ErrValidation},
		{"missing date", admin, model.Appointment{PractitionerID: 1, RequesterID: 2, Time: nineAM}, errors.ErrValidation},
		{"unknown practitioner", admin, model.Appointment{PractitionerID: 99, RequesterID: 2, Date: monday, Time: nineAM}, errors.ErrNotFound},
		{"unknown requester", admin, model.Appointment{PractitionerID: 1, RequesterID: 99, Date: monday, Time: nineAM}, errors.ErrNotFound},
		{"requester books for someone else", patient, model.Appointment{PractitionerID: 1, RequesterID: 3, Date: monday, Time: nineAM}, errors.ErrForbidden},
		{"practitioner books another calendar", doctor, model.Appointment{PractitionerID: 4, RequesterID: 2, Date: monday, Time: nineAM}, errors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apt := tt.apt
			_, err := f.svc.CreateAppointment(ctx, tt.actor, &apt)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}

	n, err := f.store.Appointments().Count(ctx, model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.events(t))
}

func TestConcurrentCreatesOnOneSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(ctx, admin, &model.Appointment{
				PractitionerID: 1, RequesterID: 2, Date: monday, Time: tenAM,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.IsCode(err, errors.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	n, err := f.store.Appointments().Count(ctx, model.AppointmentFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTransitionGrid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// how to reach each status from PENDING
	paths := map[model.AppointmentStatus][]model.AppointmentStatus{
		model.AppointmentStatusPending:   nil,
		model.AppointmentStatusConfirmed: {model.AppointmentStatusConfirmed},
		model.AppointmentStatusCancelled: {model.AppointmentStatusCancelled},
		model.AppointmentStatusCompleted: {model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted},
		model.AppointmentStatusNoShow:    {model.AppointmentStatusConfirmed, model.AppointmentStatusNoShow},
	}
	legal := map[[2]model.AppointmentStatus]bool{
		{model.AppointmentStatusPending, model.AppointmentStatusConfirmed}:   true,
		{model.AppointmentStatusPending, model.AppointmentStatusCancelled}:   true,
		{model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted}: true,
		{model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled}: true,
		{model.AppointmentStatusConfirmed, model.AppointmentStatusNoShow}:    true,
	}

	for i, from := range model.AllStatuses {
		for j, to := range model.AllStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				apt := f.book(t, monday.AddDays(j), nineAM.Add(time.Duration(i)*30*time.Minute))
				for _, step := range paths[from] {
					_, err := f.svc.Transition(ctx, admin, apt.ID, step)
					require.NoError(t, err)
				}

				got, err := f.svc.Transition(ctx, admin, apt.ID, to)
				stored, getErr := f.store.Appointments().Get(ctx, apt.ID)
				require.NoError(t, getErr)

				if legal[[2]model.AppointmentStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, got.Status)
					assert.Equal(t, to, stored.Status)
					return
				}
				assert.True(t, errors.IsCode(err, errors.ErrInvalidTransition), "got %v", err)
				assert.Equal(t, from, stored.Status)
			})
		}
	}
}

func TestTransitionPermissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	apt := f.book(t, monday, nineAM)

	_, err := f.svc.Confirm(ctx, patient, apt.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.svc.Cancel(ctx, stranger, apt.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.svc.Confirm(ctx, model.Actor{Role: model.RolePractitioner, ID: 4}, apt.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	confirmed, err := f.svc.Confirm(ctx, doctor, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)

	cancelled, err := f.svc.Cancel(ctx, patient, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	_, err = f.svc.Transition(ctx, admin, 999, model.AppointmentStatusConfirmed)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = f.svc.Transition(ctx, admin, apt.ID, model.AppointmentStatus("LOST"))
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestTransitionEmitsStatusEvent(t *testing.T) {
	f := newFixture(t, nil)
	apt := f.book(t, monday, nineAM)

	_, err := f.svc.Confirm(context.Background(), doctor, apt.ID)
	require.NoError(t, err)

	var changed *model.OutboxEvent
	for _, evt := range f.events(t) {
		if evt.EventType == model.EventAppointmentStatusChanged {
			changed = evt
		}
	}
	require.NotNil(t, changed)

	var payload model.AppointmentEvent
	require.NoError(t, json.Unmarshal(changed.Payload, &payload))
	assert.Equal(t, model.AppointmentStatusPending, payload.PreviousStatus)
	assert.Equal(t, model.AppointmentStatusConfirmed, payload.Appointment.Status)
	assert.Equal(t, doctor, payload.Actor)
}

func TestRescheduleConflictLeavesAppointmentInPlace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, monday, nineAM)
	f.book(t, monday, tenAM)

	_, err := f.svc.Reschedule(ctx, admin, a.ID, monday, tenAM)
	assert.True(t, errors.IsCode(err, errors.ErrConflict), "got %v", err)

	stored, err := f.store.Appointments().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, nineAM, stored.Time)
	assert.Equal(t, monday, stored.Date)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, monday, nineAM)
	_, err := f.svc.Confirm(ctx, doctor, a.ID)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, patient, a.ID, monday.AddDays(1), elevenAM)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, moved.Status)
	assert.Equal(t, monday.AddDays(1), moved.Date)
	assert.Equal(t, elevenAM, moved.Time)

	// the old slot is free again
	other, err := f.svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 3, Date: monday, Time: nineAM,
	})
	require.NoError(t, err)

	// moving onto its own slot is a no-op, not a conflict
	_, err = f.svc.Reschedule(ctx, admin, other.ID, monday, nineAM)
	require.NoError(t, err)

	var rescheduled *model.OutboxEvent
	for _, evt := range f.events(t) {
		if evt.EventType == model.EventAppointmentRescheduled && evt.AggregateID == a.ID {
			rescheduled = evt
		}
	}
	require.NotNil(t, rescheduled)
	var payload model.AppointmentEvent
	require.NoError(t, json.Unmarshal(rescheduled.Payload, &payload))
	require.NotNil(t, payload.PreviousSlot)
	assert.Equal(t, nineAM, payload.PreviousSlot.Time)
}

func TestRescheduleRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, monday, nineAM)

	_, err := f.svc.Reschedule(ctx, admin, a.ID, monday, afterHour)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = f.svc.Reschedule(ctx, admin, a.ID, model.NewDate(2025, 1, 1), tenAM)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = f.svc.Reschedule(ctx, stranger, a.ID, monday, tenAM)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.svc.Reschedule(ctx, admin, 999, monday, tenAM)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = f.svc.Cancel(ctx, admin, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, admin, a.ID, monday, tenAM)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidState))

	stored, err := f.store.Appointments().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, nineAM, stored.Time)
}

func TestUpdateAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, monday, nineAM)

	notes := "bring x-rays"
	updated, err := f.svc.UpdateAppointment(ctx, patient, a.ID, model.UpdateAppointmentRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)

	_, err = f.svc.Cancel(ctx, patient, a.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateAppointment(ctx, patient, a.ID, model.UpdateAppointmentRequest{Notes: &notes})
	assert.True(t, errors.IsCode(err, errors.ErrInvalidState))
}

func TestGetAndDeleteAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, monday, nineAM)

	got, err := f.svc.GetAppointment(ctx, patient, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", got.RequesterName)

	_, err = f.svc.GetAppointment(ctx, stranger, a.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	err = f.svc.DeleteAppointment(ctx, doctor, a.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	require.NoError(t, f.svc.DeleteAppointment(ctx, admin, a.ID))

	_, err = f.svc.GetAppointment(ctx, admin, a.ID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	err = f.svc.DeleteAppointment(ctx, admin, a.ID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

type failingOutbox struct {
	repository.OutboxRepository
}

func (failingOutbox) Create(context.Context, *model.OutboxEvent) error {
	return stderrors.New("outbox unavailable")
}

func TestFailedEventWriteRollsBackLedger(t *testing.T) {
	f := newFixture(t, failingOutbox{})
	ctx := context.Background()

	_, err := f.svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 2, Date: monday, Time: nineAM,
	})
	require.Error(t, err)

	n, err := f.store.Appointments().Count(ctx, model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateAppointmentWithCancelledContextIsConflict(t *testing.T) {
	f := newFixture(t, nil)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewService(Deps{
		Appointments:  f.store.Appointments(),
		Practitioners: f.store.Practitioners(),
		Requesters:    f.store.Requesters(),
		Outbox:        f.store.Outbox(),
		Locker:        lock.NewRedis(client, time.Second),
		Metrics:       metrics.NewNop(),
		Clock:         func() time.Time { return fixedNow },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.CreateAppointment(ctx, admin, &model.Appointment{
		PractitionerID: 1, RequesterID: 2, Date: monday, Time: nineAM,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConflict), "got %v", err)

	all, err := f.store.Appointments().ListAll(context.Background(), model.AppointmentFilter{}, model.DefaultSort())
	require.NoError(t, err)
	assert.Empty(t, all)
}
