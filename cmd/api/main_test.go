package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/service/appointment"
	"github.com/jwalitptl/booking-engine/internal/service/availability"
	"github.com/jwalitptl/booking-engine/pkg/auth"
	"github.com/jwalitptl/booking-engine/pkg/errors"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "cli-secret")
	t.Setenv("BOOKING_STORAGE_DRIVER", "memory")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--role", "practitioner", "--id", "7"})
	require.NoError(t, root.Execute())

	actor, err := auth.NewJWTService("cli-secret", "booking-engine", time.Hour).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, model.Actor{Role: model.RolePractitioner, ID: 7}, actor)
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "cli-secret")

	for _, args := range [][]string{
		{"token", "--role", "janitor", "--id", "1"},
		{"token", "--role", "ADMIN", "--id", "0"},
		{"token", "--id", "1"},
	} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		assert.Error(t, root.Execute(), args)
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "relay", "token"} {
		assert.True(t, names[want], want)
	}
}

const testSeed = `
practitioners:
  - id: 1
    first_name: Ada
    last_name: Lovelace
    schedule:
      - days: [sun, mon, tue, wed, thu, fri, sat]
        start: "09:00"
        end: "17:00"
requesters:
  - id: 2
    first_name: Grace
    last_name: Hopper
  - id: 3
    first_name: Edsger
    last_name: Dijkstra
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMemoryDriverWithSeedCanBook(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "cli-secret")
	t.Setenv("BOOKING_STORAGE_DRIVER", "memory")
	t.Setenv("BOOKING_STORAGE_SEED", writeSeed(t, testSeed))

	ctx := context.Background()
	a, err := newApp(ctx, false)
	require.NoError(t, err)
	defer a.close()

	ledger := appointment.NewService(appointment.Deps{
		Appointments:  a.appointments,
		Practitioners: a.practitioners,
		Requesters:    a.requesters,
		Outbox:        a.outbox,
		Resolver:      availability.NewResolver(a.practitioners, a.appointments, availability.WithLocation(a.loc)),
		Locker:        a.locker(),
		Logger:        a.log,
		Metrics:       a.metrics,
	})

	date := model.DateOf(time.Now().In(a.loc).AddDate(0, 0, 2))
	nine := model.MustTimeOfDay("09:00")

	apt, err := ledger.CreateAppointment(ctx, model.Actor{Role: model.RoleRequester, ID: 2}, &model.Appointment{
		PractitionerID: 1, Date: date, Time: nine,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)

	_, err = ledger.CreateAppointment(ctx, model.Actor{Role: model.RoleRequester, ID: 3}, &model.Appointment{
		PractitionerID: 1, Date: date, Time: nine,
	})
	assert.True(t, errors.IsCode(err, errors.ErrConflict), "got %v", err)

	_, err = ledger.CreateAppointment(ctx, model.Actor{Role: model.RoleRequester, ID: 9}, &model.Appointment{
		PractitionerID: 1, Date: date, Time: model.MustTimeOfDay("10:00"),
	})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound), "got %v", err)
}

func TestMemoryDriverRejectsBadSeed(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "cli-secret")
	t.Setenv("BOOKING_STORAGE_DRIVER", "memory")

	for name, path := range map[string]string{
		"missing file":  filepath.Join(t.TempDir(), "nope.yaml"),
		"bad weekday":   writeSeed(t, "practitioners:\n  - id: 1\n    schedule:\n      - days: [someday]\n        start: \"09:00\"\n        end: \"17:00\"\n"),
		"duplicate ids": writeSeed(t, "requesters:\n  - id: 2\n  - id: 2\n"),
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BOOKING_STORAGE_SEED", path)
			_, err := newApp(context.Background(), false)
			assert.Error(t, err)
		})
	}
}
