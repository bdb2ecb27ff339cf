// Package memory is an in-process implementation of the repositories, used by
// tests and by the server when storage.driver is "memory".
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/pagination"
)

// Store holds every table in maps. Transactions are serialized and roll back
// through an undo log of their own writes.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time

	nextID        int64
	appointments  map[int64]model.Appointment
	practitioners map[int64]model.Practitioner
	requesters    map[int64]model.Requester
	outbox        map[uuid.UUID]model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		now:           time.Now,
		appointments:  make(map[int64]model.Appointment),
		practitioners: make(map[int64]model.Practitioner),
		requesters:    make(map[int64]model.Requester),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
	}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) AddPractitioner(p model.Practitioner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practitioners[p.ID] = p
}

func (s *Store) AddRequester(r model.Requester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requesters[r.ID] = r
}

func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepository{s} }
func (s *Store) Practitioners() repository.PractitionerDirectory { return &practitionerDirectory{s} }
func (s *Store) Requesters() repository.RequesterDirectory { return &requesterDirectory{s} }
func (s *Store) Outbox() repository.OutboxRepository { return &outboxRepository{s} }

type txKey struct{}

// txLog collects undo steps for the writes one transaction made. Writes from
// outside the transaction are never recorded and so survive its rollback.
type txLog struct {
	undo []func()
}

func txFrom(ctx context.Context) *txLog {
	log, _ := ctx.Value(txKey{}).(*txLog)
	return log
}

// touchAppointment must be called with mu held, before the row changes.
func (s *Store) touchAppointment(ctx context.Context, id int64) {
	log := txFrom(ctx)
	if log == nil {
		return
	}
	prev, existed := s.appointments[id]
	log.undo = append(log.undo, func() {
		if existed {
			s.appointments[id] = prev
		} else {
			delete(s.appointments, id)
		}
	})
}

// touchOutbox must be called with mu held, before the row changes.
func (s *Store) touchOutbox(ctx context.Context, id uuid.UUID) {
	log := txFrom(ctx)
	if log == nil {
		return
	}
	prev, existed := s.outbox[id]
	log.undo = append(log.undo, func() {
		if existed {
			s.outbox[id] = prev
		} else {
			delete(s.outbox, id)
		}
	})
}

// withinTx serializes transactions against each other. Rollback replays the
// transaction's own undo log in reverse; ids handed out are not reused, as
// with a database sequence.
func (s *Store) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	log := &txLog{}
	rollback := func() {
		s.mu.Lock()
		for i := len(log.undo) - 1; i >= 0; i-- {
			log.undo[i]()
		}
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		rollback()
		return err
	}
	return nil
}

type appointmentRepository struct {
	s *Store
}

func (r *appointmentRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.s.withinTx(ctx, fn)
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if apt.Active() && s.occupied(apt.Slot(), 0) {
		return errors.Conflict("slot already booked", nil)
	}

	s.nextID++
	s.touchAppointment(ctx, s.nextID)
	now := s.now()
	apt.ID = s.nextID
	apt.CreatedAt = now
	apt.UpdatedAt = now
	s.appointments[apt.ID] = *apt
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	apt, ok := s.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	s.decorate(&apt)
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[apt.ID]; !ok {
		return errors.NotFound("appointment", nil)
	}
	if apt.Active() && s.occupied(apt.Slot(), apt.ID) {
		return errors.Conflict("slot already booked", nil)
	}

	s.touchAppointment(ctx, apt.ID)
	apt.UpdatedAt = s.now()
	stored := *apt
	stored.PractitionerName, stored.RequesterName = "", ""
	s.appointments[apt.ID] = stored
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return errors.NotFound("appointment", nil)
	}
	s.touchAppointment(ctx, id)
	delete(s.appointments, id)
	return nil
}

func (r *appointmentRepository) FindActiveAtSlot(ctx context.Context, slot model.Slot, excludeID int64) (*model.Appointment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, apt := range s.appointments {
		if apt.ID != excludeID && apt.Active() && apt.Slot() == slot {
			s.decorate(&apt)
			return &apt, nil
		}
	}
	return nil, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter, page pagination.Params, order model.SortOrder) ([]model.Appointment, int, error) {
	all := r.s.matching(filter, order)
	total := len(all)

	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *appointmentRepository) ListAll(ctx context.Context, filter model.AppointmentFilter, order model.SortOrder) ([]model.Appointment, error) {
	return r.s.matching(filter, order), nil
}

func (r *appointmentRepository) Count(ctx context.Context, filter model.AppointmentFilter) (int, error) {
	return len(r.s.matching(filter, model.DefaultSort())), nil
}

// occupied must be called with mu held.
func (s *Store) occupied(slot model.Slot, excludeID int64) bool {
	for _, existing := range s.appointments {
		if existing.ID != excludeID && existing.Active() && existing.Slot() == slot {
			return true
		}
	}
	return false
}

// decorate must be called with mu held.
func (s *Store) decorate(apt *model.Appointment) {
	if p, ok := s.practitioners[apt.PractitionerID]; ok {
		apt.PractitionerName = p.FullName()
	}
	if rq, ok := s.requesters[apt.RequesterID]; ok {
		apt.RequesterName = strings.TrimSpace(rq.FirstName + " " + rq.LastName)
	}
}

func (s *Store) matching(filter model.AppointmentFilter, order model.SortOrder) []model.Appointment {
	s.mu.RLock()
	out := make([]model.Appointment, 0)
	for _, apt := range s.appointments {
		if filter.Matches(&apt) {
			s.decorate(&apt)
			out = append(out, apt)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j], order)
	})
	return out
}

func less(a, b *model.Appointment, order model.SortOrder) bool {
	c := compare(a, b, order.Field)
	if c == 0 {
		// stable tie-break independent of direction
		return a.ID < b.ID
	}
	if order.Dir == model.SortDesc {
		return c > 0
	}
	return c < 0
}

func compare(a, b *model.Appointment, field model.SortField) int {
	switch field {
	case model.SortByStatus:
		if c := strings.Compare(string(a.Status), string(b.Status)); c != 0 {
			return c
		}
	case model.SortByPractitioner:
		if c := strings.Compare(a.PractitionerName, b.PractitionerName); c != 0 {
			return c
		}
	case model.SortByRequester:
		if c := strings.Compare(a.RequesterName, b.RequesterName); c != 0 {
			return c
		}
	case model.SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return compareSlot(a, b)
}

func compareSlot(a, b *model.Appointment) int {
	switch {
	case a.Date.Before(b.Date):
		return -1
	case a.Date.After(b.Date):
		return 1
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	}
	return 0
}

type practitionerDirectory struct {
	s *Store
}

func (d *practitionerDirectory) GetByID(ctx context.Context, id int64) (*model.Practitioner, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	p, ok := d.s.practitioners[id]
	if !ok {
		return nil, errors.NotFound("practitioner", nil)
	}
	p.Schedule = append(model.WeeklySchedule(nil), p.Schedule...)
	return &p, nil
}

type requesterDirectory struct {
	s *Store
}

func (d *requesterDirectory) GetByID(ctx context.Context, id int64) (*model.Requester, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	r, ok := d.s.requesters[id]
	if !ok {
		return nil, errors.NotFound("requester", nil)
	}
	return &r, nil
}

type outboxRepository struct {
	s *Store
}

func (o *outboxRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return o.s.withinTx(ctx, fn)
}

func (o *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	o.s.touchOutbox(ctx, event.ID)
	now := o.s.now()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now
	o.s.outbox[event.ID] = *event
	return nil
}

func (o *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	var pending []*model.OutboxEvent
	for _, evt := range o.s.outbox {
		if evt.Status == model.OutboxStatusPending {
			e := evt
			pending = append(pending, &e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (o *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	evt, ok := o.s.outbox[id]
	if !ok {
		return errors.NotFound("outbox event", nil)
	}
	o.s.touchOutbox(ctx, id)
	now := o.s.now()
	evt.Status = status
	evt.ErrorMessage = errorMessage
	evt.UpdatedAt = now
	if status == model.OutboxStatusProcessed {
		evt.ProcessedAt = &now
	} else {
		evt.RetryCount++
	}
	o.s.outbox[id] = evt
	return nil
}

func (o *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	var n int64
	for id, evt := range o.s.outbox {
		if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			o.s.touchOutbox(ctx, id)
			delete(o.s.outbox, id)
			n++
		}
	}
	return n, nil
}
