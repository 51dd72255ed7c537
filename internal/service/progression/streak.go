package progression

import "time"

// calendarDay returns t's calendar date in loc, as midnight UTC.
// Dates are stored and compared in this form so the database column type
// does not matter.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// storedDay normalizes a date read back from the database.
func storedDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// advanceStreak applies one activity on today to a streak.
// Same day keeps the streak, the day after extends it, anything else restarts at 1.
// A last activity date after today (clock skew) is treated as same day.
func advanceStreak(streak int, last *time.Time, today time.Time) (int, *time.Time) {
	if last == nil {
		return 1, &today
	}

	lastDay := storedDay(*last)
	switch {
	case !lastDay.Before(today):
		return streak, &lastDay
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return streak + 1, &today
	default:
		return 1, &today
	}
}
