// Package cache decorates slow directories with an in-process TTL cache.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
)

// PractitionerDirectory caches practitioner profiles and weekly schedules.
// Schedules change rarely and are read on every availability check.
type PractitionerDirectory struct {
	next  repository.PractitionerDirectory
	cache *cache.Cache
}

func NewPractitionerDirectory(next repository.PractitionerDirectory, ttl, cleanup time.Duration) *PractitionerDirectory {
	return &PractitionerDirectory{
		next:  next,
		cache: cache.New(ttl, cleanup),
	}
}

func (d *PractitionerDirectory) GetByID(ctx context.Context, id int64) (*model.Practitioner, error) {
	key := strconv.FormatInt(id, 10)
	if cached, found := d.cache.Get(key); found {
		return clonePractitioner(cached.(*model.Practitioner)), nil
	}

	p, err := d.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, clonePractitioner(p), cache.DefaultExpiration)
	return p, nil
}

func clonePractitioner(p *model.Practitioner) *model.Practitioner {
	cp := *p
	cp.Schedule = append(model.WeeklySchedule(nil), p.Schedule...)
	return &cp
}
