package reminder

import (
	"context"
	"log/slog"
	"time"
)

// lastBusinessDay walks backward from the last calendar day of the month,
// skipping weekends and public holidays. The returned date carries the given
// location at midnight. A failing holiday lookup is logged and the date is
// treated as a working day.
func lastBusinessDay(ctx context.Context, holidays HolidayProvider, year int, month time.Month, loc *time.Location, country, subdivision string) time.Time {
	// Day 0 of the next month is the last day of this one.
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	for {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			holiday, err := holidays.IsPublicHoliday(ctx, d, country, subdivision)
			if err != nil {
				slog.Warn("holiday lookup failed, treating as working day", "date", d.Format(time.DateOnly), "country", country, "error", err)
				return d
			}
			if !holiday {
				return d
			}
		}
		d = d.AddDate(0, 0, -1)
	}
}
