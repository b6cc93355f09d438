// Package analytics buckets party mention counts by period and answers
// the queries of the reporting surface.
package analytics

import (
	"fmt"
	"time"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Frequency is the bucket width of a dataset.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Granularity is the time configuration of one dataset. All periods are
// computed on UTC calendar dates.
type Granularity struct {
	Frequency     Frequency
	WeekStart     time.Weekday
	RollingWindow int
	LabelFormat   string
}

// GranularityFor reads the time configuration of ds.
func GranularityFor(ds config.DatasetConfig) (Granularity, error) {
	g := Granularity{
		Frequency:     Frequency(ds.Frequency),
		RollingWindow: ds.RollingWindow,
		LabelFormat:   ds.LabelFormat,
	}
	field := "datasets." + ds.Name

	switch g.Frequency {
	case Weekly, Monthly:
	default:
		return Granularity{}, &types.ConfigError{
			Field: field + ".frequency",
			Err:   fmt.Errorf("unknown frequency %q", ds.Frequency),
		}
	}

	wd, ok := config.ParseWeekday(ds.WeekStart)
	if !ok {
		return Granularity{}, &types.ConfigError{
			Field: field + ".week_start",
			Err:   fmt.Errorf("unknown weekday %q", ds.WeekStart),
		}
	}
	g.WeekStart = wd

	if g.RollingWindow < 1 {
		g.RollingWindow = 1
	}
	if g.LabelFormat == "" {
		g.LabelFormat = time.DateOnly
	}
	return g, nil
}

// PeriodStart returns midnight UTC of the first day of the period
// containing t.
func (g Granularity) PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if g.Frequency == Monthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	offset := (int(day.Weekday()) - int(g.WeekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// Next returns the start of the period after the one starting at p.
func (g Granularity) Next(p time.Time) time.Time {
	if g.Frequency == Monthly {
		return p.AddDate(0, 1, 0)
	}
	return p.AddDate(0, 0, 7)
}

// Label formats a period start for display.
func (g Granularity) Label(p time.Time) string {
	return p.Format(g.LabelFormat)
}
