package intake

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// NormalizeDeadline corrects the year of a classifier-extracted deadline so
// the committed date is never in the past relative to the request. Casual
// text like "Feb 14" makes the classifier guess a year; the guess is often
// last year, or an absurd one. Unparsable input passes through unchanged so
// a sloppy date never blocks the flow.
func NormalizeDeadline(raw string, reference time.Time) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := time.Parse(isoDate, trimmed)
	if err != nil {
		return raw
	}

	refDate := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case parsed.Year() < refDate.Year():
		return bumpIntoFuture(parsed, refDate).Format(isoDate)
	case parsed.Year() == refDate.Year():
		if parsed.Before(refDate) {
			return clampedDate(refDate.Year()+1, parsed.Month(), parsed.Day()).Format(isoDate)
		}
		return parsed.Format(isoDate)
	case parsed.Year() == refDate.Year()+1:
		return parsed.Format(isoDate)
	default:
		// Implausibly far future: almost certainly an extraction error,
		// so rebuild from the reference year.
		return bumpIntoFuture(parsed, refDate).Format(isoDate)
	}
}

func bumpIntoFuture(parsed time.Time, refDate time.Time) time.Time {
	candidate := clampedDate(refDate.Year(), parsed.Month(), parsed.Day())
	if candidate.Before(refDate) {
		candidate = clampedDate(refDate.Year()+1, parsed.Month(), parsed.Day())
	}
	return candidate
}

// clampedDate builds year-month-day with the day clamped to the last valid
// day of that month (Feb 30 -> Feb 28/29).
func clampedDate(year int, month time.Month, day int) time.Time {
	last := lastDayOfMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
