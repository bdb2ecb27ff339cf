package model

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RolePractitioner Role = "PRACTITIONER"
	RoleRequester    Role = "REQUESTER"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RolePractitioner, RoleRequester:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	Role Role  `json:"role"`
	ID   int64 `json:"id"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Owns reports whether the actor is a party to the appointment.
func (a Actor) Owns(apt *Appointment) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RolePractitioner:
		return apt.PractitionerID == a.ID
	case RoleRequester:
		return apt.RequesterID == a.ID
	}
	return false
}

type TimeScope string

const (
	TimeScopeAll      TimeScope = "all"
	TimeScopeUpcoming TimeScope = "upcoming"
	TimeScopePast     TimeScope = "past"
)

func ParseTimeScope(s string) (TimeScope, error) {
	switch ts := TimeScope(strings.ToLower(strings.TrimSpace(s))); ts {
	case "":
		return TimeScopeAll, nil
	case TimeScopeAll, TimeScopeUpcoming, TimeScopePast:
		return ts, nil
	}
	return "", fmt.Errorf("unknown time scope %q", s)
}

// StatusAll disables status filtering.
const StatusAll = "ALL"

// AppointmentFilter is the predicate handed to storage. Zero fields do not filter.
type AppointmentFilter struct {
	PractitionerID int64
	RequesterID    int64
	Status         AppointmentStatus
	Scope          TimeScope
	// Today anchors Scope; upcoming means Date >= Today.
	Today Date
	From  Date
	To    Date
	// ActiveOnly drops cancelled entries.
	ActiveOnly bool
}

// Matches evaluates the predicate in memory with the same semantics storage applies.
func (f AppointmentFilter) Matches(a *Appointment) bool {
	if f.PractitionerID != 0 && a.PractitionerID != f.PractitionerID {
		return false
	}
	if f.RequesterID != 0 && a.RequesterID != f.RequesterID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ActiveOnly && !a.Active() {
		return false
	}
	switch f.Scope {
	case TimeScopeUpcoming:
		if a.Date.Before(f.Today) {
			return false
		}
	case TimeScopePast:
		if !a.Date.Before(f.Today) {
			return false
		}
	}
	if !f.From.IsZero() && a.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Date.After(f.To) {
		return false
	}
	return true
}

type SortField string

const (
	SortByDate         SortField = "date"
	SortByStatus       SortField = "status"
	SortByPractitioner SortField = "practitioner"
	SortByRequester    SortField = "requester"
	SortByCreatedAt    SortField = "created_at"
)

func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortByDate, SortByStatus, SortByPractitioner, SortByRequester, SortByCreatedAt:
		return f, nil
	}
	return "", fmt.Errorf("unsupported sort field %q", s)
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOrder represents sorting parameters
type SortOrder struct {
	Field SortField     `json:"field"`
	Dir   SortDirection `json:"direction"`
}

// DefaultSort lists the most recent appointments first.
func DefaultSort() SortOrder {
	return SortOrder{Field: SortByDate, Dir: SortDesc}
}

// Toggle returns the order a client gets after clicking field: a repeated
// field flips direction, a new field starts ascending.
func (s SortOrder) Toggle(field SortField) SortOrder {
	if s.Field == field {
		if s.Dir == SortAsc {
			return SortOrder{Field: field, Dir: SortDesc}
		}
		return SortOrder{Field: field, Dir: SortAsc}
	}
	return SortOrder{Field: field, Dir: SortAsc}
}

// ListParams carries everything a list query needs besides the actor.
type ListParams struct {
	Filter AppointmentFilter
	Page   int
	Size   int
	Sort   SortOrder
}

// CanView reports whether a may read the feed or calendar of subject.
func (a Actor) CanView(subject Actor) bool {
	return a.IsAdmin() || a == subject
}

// SubjectFilter selects the appointments belonging to subject. Admin
// subjects select everything.
func SubjectFilter(subject Actor) AppointmentFilter {
	switch subject.Role {
	case RolePractitioner:
		return AppointmentFilter{PractitionerID: subject.ID}
	case RoleRequester:
		return AppointmentFilter{RequesterID: subject.ID}
	}
	return AppointmentFilter{}
}
