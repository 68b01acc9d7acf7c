// Package shipping prices delivery by distance and time of day.
package shipping

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/calendar"
)

// Bucket classifies the delivery time of day.
type Bucket string

const (
	BucketSleep Bucket = "SLEEP"
	BucketNight Bucket = "NIGHT"
	BucketPeak  Bucket = "PEAK"
	BucketLow   Bucket = "LOW"
)

// window is a half-open [from, to) range in minutes after local midnight.
type window struct{ from, to int }

func (w window) contains(m int) bool { return m >= w.from && m < w.to }

func hm(h, m int) int { return h*60 + m }

var (
	sleepFrom = hm(22, 0)
	sleepTo   = hm(6, 0)
	night     = window{hm(19, 30), hm(21, 0)}

	weekdayPeaks = []window{
		{hm(7, 30), hm(9, 0)},
		{hm(16, 30), hm(18, 0)},
		{hm(18, 0), hm(19, 30)},
	}
	saturdayPeaks = []window{
		{hm(7, 30), hm(9, 0)},
		{hm(12, 0), hm(13, 30)},
		{hm(18, 0), hm(19, 30)},
	}
	sundayPeaks = []window{
		{hm(18, 0), hm(19, 30)},
	}
)

// Classify returns the bucket for an instant, evaluated in the store's zone.
func Classify(at time.Time) Bucket {
	m := calendar.MinuteOfDay(at)
	if m >= sleepFrom || m < sleepTo {
		return BucketSleep
	}
	if night.contains(m) {
		return BucketNight
	}

	var peaks []window
	switch calendar.Weekday(at) {
	case time.Saturday:
		peaks = saturdayPeaks
	case time.Sunday:
		peaks = sundayPeaks
	default:
		peaks = weekdayPeaks
	}
	for _, w := range peaks {
		if w.contains(m) {
			return BucketPeak
		}
	}
	return BucketLow
}

var (
	feeUnit  = decimal.NewFromInt(500)
	roundTo  = decimal.NewFromInt(100)
	constant = map[Bucket]int64{BucketPeak: 42, BucketNight: 44, BucketSleep: 44, BucketLow: 24}
)

// CalculateFee returns the delivery fee in VND for distanceKm at the given
// time, rounded up to the next 100. A zero time means now.
//
//	PEAK:        500 * (x² + 5x + 42)
//	NIGHT/SLEEP: 500 * (x² +  x + 44)
//	LOW:         500 * (x² +  x + 24)
func CalculateFee(distanceKm decimal.Decimal, at time.Time) int64 {
	if at.IsZero() {
		at = time.Now()
	}
	if distanceKm.IsNegative() {
		distanceKm = decimal.Zero
	}
	b := Classify(at)

	linear := distanceKm
	if b == BucketPeak {
		linear = distanceKm.Mul(decimal.NewFromInt(5))
	}
	fee := feeUnit.Mul(distanceKm.Mul(distanceKm).Add(linear).Add(decimal.NewFromInt(constant[b])))
	return fee.Div(roundTo).Ceil().Mul(roundTo).IntPart()
}

// Quote is a fee together with the inputs it was computed from.
type Quote struct {
	DistanceKm decimal.Decimal
	Bucket     Bucket
	Fee        int64
	At         time.Time
}

// NewQuote computes a Quote.
func NewQuote(distanceKm decimal.Decimal, at time.Time) Quote {
	if at.IsZero() {
		at = time.Now()
	}
	return Quote{
		DistanceKm: distanceKm,
		Bucket:     Classify(at),
		Fee:        CalculateFee(distanceKm, at),
		At:         at,
	}
}
