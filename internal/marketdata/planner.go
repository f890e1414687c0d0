package marketdata

import "time"

// historyYears is how far back the first fetch reaches for a security without
// any stored prices.
const historyYears = 2

// Window is an inclusive calendar-date fetch range.
type Window struct {
	From time.Time
	To   time.Time
}

// Request translates the inclusive window into the provider convention of an
// exclusive start and inclusive end.
func (w Window) Request() (startExclusive, endInclusive time.Time) {
	return w.From.AddDate(0, 0, -1), w.To
}

// PlanWindow computes the next fetch window for a security from its stored
// price watermark. from/to are the optional requested bounds, watermark the
// last stored price date (nil when none). The second return is false when
// nothing needs fetching.
func PlanWindow(from, to, watermark *time.Time, now time.Time) (Window, bool) {
	upper := priorBusinessDay(dateOnly(now).AddDate(0, 0, -1))
	if to != nil && dateOnly(*to).Before(upper) {
		upper = dateOnly(*to)
	}

	var w Window
	switch {
	case watermark == nil:
		w.To = upper
		if from != nil {
			w.From = dateOnly(*from)
		} else {
			w.From = upper.AddDate(-historyYears, 0, 0)
		}
	case from != nil && !dateOnly(*from).After(dateOnly(*watermark)):
		// Backfill history older than what is stored.
		w.From = dateOnly(*from)
		w.To = dateOnly(*watermark).AddDate(0, 0, -1)
		if upper.Before(w.To) {
			w.To = upper
		}
	case from != nil:
		w.From = dateOnly(*from)
		w.To = upper
	default:
		w.From = dateOnly(*watermark).AddDate(0, 0, 1)
		w.To = upper
	}

	if w.To.Before(w.From) {
		return Window{}, false
	}
	return w, true
}

// priorBusinessDay walks a date backwards off weekends.
func priorBusinessDay(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
