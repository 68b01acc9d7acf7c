// Package calendar defines the business-day boundaries used by promotion
// counters, shipping buckets and scheduled jobs.
package calendar

import "time"

// Location is the store's fixed UTC+7 zone. Day boundaries never depend on
// the server's local timezone.
var Location = time.FixedZone("ICT", 7*3600)

// StartOfDay returns local midnight of the business day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// MinuteOfDay returns minutes elapsed since local midnight.
func MinuteOfDay(t time.Time) int {
	local := t.In(Location)
	return local.Hour()*60 + local.Minute()
}

// Weekday returns the weekday of t in the store's zone.
func Weekday(t time.Time) time.Weekday {
	return t.In(Location).Weekday()
}
