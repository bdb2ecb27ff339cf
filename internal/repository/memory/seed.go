package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jwalitptl/booking-engine/internal/model"
)

// Seed is the directory content a memory store starts with: the
// practitioners with their weekly hours and the requesters who may book.
type Seed struct {
	Practitioners []SeedPractitioner `mapstructure:"practitioners"`
	Requesters    []SeedRequester    `mapstructure:"requesters"`
}

type SeedPractitioner struct {
	ID        int64        `mapstructure:"id"`
	FirstName string       `mapstructure:"first_name"`
	LastName  string       `mapstructure:"last_name"`
	Specialty string       `mapstructure:"specialty"`
	Schedule  []SeedWindow `mapstructure:"schedule"`
}

// SeedWindow opens the same hours on every listed day.
type SeedWindow struct {
	Days  []string `mapstructure:"days"`
	Start string   `mapstructure:"start"`
	End   string   `mapstructure:"end"`
}

type SeedRequester struct {
	ID        int64  `mapstructure:"id"`
	FirstName string `mapstructure:"first_name"`
	LastName  string `mapstructure:"last_name"`
}

// LoadSeed reads a seed file in any format viper understands.
func LoadSeed(path string) (*Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := v.Unmarshal(&seed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed file: %w", err)
	}
	return &seed, nil
}

// Load validates seed and adds its entries to the store. Nothing is added
// when any entry is invalid.
func (s *Store) Load(seed *Seed) error {
	practitioners := make([]model.Practitioner, 0, len(seed.Practitioners))
	seen := map[int64]bool{}
	for _, sp := range seed.Practitioners {
		if sp.ID <= 0 || seen[sp.ID] {
			return fmt.Errorf("seed: invalid or duplicate practitioner id %d", sp.ID)
		}
		seen[sp.ID] = true

		p := model.Practitioner{ID: sp.ID, FirstName: sp.FirstName, LastName: sp.LastName, Specialty: sp.Specialty}
		for _, w := range sp.Schedule {
			windows, err := w.windows(sp.ID)
			if err != nil {
				return fmt.Errorf("seed: practitioner %d: %w", sp.ID, err)
			}
			p.Schedule = append(p.Schedule, windows...)
		}
		practitioners = append(practitioners, p)
	}

	requesters := make([]model.Requester, 0, len(seed.Requesters))
	seen = map[int64]bool{}
	for _, sr := range seed.Requesters {
		if sr.ID <= 0 || seen[sr.ID] {
			return fmt.Errorf("seed: invalid or duplicate requester id %d", sr.ID)
		}
		seen[sr.ID] = true
		requesters = append(requesters, model.Requester{ID: sr.ID, FirstName: sr.FirstName, LastName: sr.LastName})
	}

	for _, p := range practitioners {
		s.AddPractitioner(p)
	}
	for _, r := range requesters {
		s.AddRequester(r)
	}
	return nil
}

func (w SeedWindow) windows(practitionerID int64) ([]model.ScheduleWindow, error) {
	start, err := model.ParseTimeOfDay(w.Start)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseTimeOfDay(w.End)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("window %s-%s ends before it starts", w.Start, w.End)
	}
	if len(w.Days) == 0 {
		return nil, fmt.Errorf("window %s-%s has no days", w.Start, w.End)
	}

	out := make([]model.ScheduleWindow, 0, len(w.Days))
	for _, name := range w.Days {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ScheduleWindow{
			PractitionerID: practitionerID,
			DayOfWeek:      day,
			Start:          start,
			End:            end,
			IsOpen:         true,
		})
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
