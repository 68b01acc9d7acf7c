package shipping

import (
	"context"
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUpstreamUnavailable is returned when a remote distance provider fails.
// Callers surface it as a service-unavailable condition without retrying.
var ErrUpstreamUnavailable = errors.New("distance provider unavailable")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceEstimator resolves the delivery distance between two points.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, from, to Point) (decimal.Decimal, error)
}

// Haversine estimates great-circle distance locally.
type Haversine struct{}

var _ DistanceEstimator = Haversine{}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance rounded to 0.1 km.
func (Haversine) DistanceKm(_ context.Context, from, to Point) (decimal.Decimal, error) {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(to.Lat - from.Lat)
	dLng := rad(to.Lng - from.Lng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(from.Lat))*math.Cos(rad(to.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return decimal.NewFromFloat(earthRadiusKm * c).Round(1), nil
}
