package task

import "time"

// IsDue reports whether rec should fire for a trigger of slot at now.
//
// Elapsed days are counted between local calendar dates in now's location, so
// a record fired at 22:02 is one day old at 22:00 the next evening, and DST
// days still count as one day. The caller passes now in the scheduler's zone.
func IsDue(rec Record, slot CheckTime, now time.Time) bool {
	if !rec.Active || rec.CheckTime != slot {
		return false
	}
	switch rec.Frequency {
	case Once:
		return rec.LastFiredAt == nil
	case Daily:
		return true
	case Weekly:
		return rec.LastFiredAt == nil || CalendarDays(*rec.LastFiredAt, now) >= 7
	case EveryNDays:
		n := rec.IntervalDays()
		if n < 1 {
			// Rejected at registration; a bad row never fires.
			return false
		}
		return rec.LastFiredAt == nil || CalendarDays(*rec.LastFiredAt, now) >= n
	default:
		return false
	}
}

// CalendarDays returns the number of date boundaries between from and to,
// both taken in to's location. Negative when from is on a later date.
func CalendarDays(from, to time.Time) int {
	y1, m1, d1 := from.In(to.Location()).Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
