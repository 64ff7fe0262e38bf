package geo

import (
	"math"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

const EarthRadiusKm = 6371.0

// Distance uses the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func Between(from, to domain.Location) float64 {
	return Distance(from.Lat, from.Lon, to.Lat, to.Lon)
}

func TravelMinutes(distanceKm, speedKmh float64) int {
	if distanceKm <= 0 || speedKmh <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / speedKmh * 60))
}

func EstimateArrival(now time.Time, distanceKm, speedKmh float64) time.Time {
	return now.Add(time.Duration(TravelMinutes(distanceKm, speedKmh)) * time.Minute)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
