package services

import (
	"time"
)

// Time-of-day classification for the ETA model. All ranges are
// start-inclusive, end-exclusive; 11:00 is not a peak instant, 09:00 is.

// WindowKey maps a wall-clock instant to its hourly statistics bucket.
func WindowKey(now time.Time) string {
	return now.Format("2006-01-02T15")
}

func minuteOfDay(now time.Time) int {
	return now.Hour()*60 + now.Minute()
}

// IsPeakHour reports 09:00-11:00 and 14:00-16:00.
func IsPeakHour(now time.Time) bool {
	m := minuteOfDay(now)
	return (m >= 9*60 && m < 11*60) || (m >= 14*60 && m < 16*60)
}

// IsLunchHour reports 12:00-13:30.
func IsLunchHour(now time.Time) bool {
	m := minuteOfDay(now)
	return m >= 12*60 && m < 13*60+30
}

// IsEveningRush reports 18:00-20:00.
func IsEveningRush(now time.Time) bool {
	m := minuteOfDay(now)
	return m >= 18*60 && m < 20*60
}

func IsWeekend(now time.Time) bool {
	d := now.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// DayOfWeekFactor scales an ETA by how the day typically runs: Mondays
// slowest, Fridays slightly slow, weekends faster.
func DayOfWeekFactor(now time.Time) float64 {
	switch now.Weekday() {
	case time.Monday:
		return 1.15
	case time.Friday:
		return 1.10
	case time.Saturday, time.Sunday:
		return 0.90
	default:
		return 1.00
	}
}
