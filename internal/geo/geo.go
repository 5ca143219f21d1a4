package geo

import (
	"math"
	"sort"

	"spot-presence-backend/internal/model"
)

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between two points in
// kilometers, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// SpotDistance pairs a spot with its distance from a reference point.
type SpotDistance struct {
	Spot       model.Spot `json:"spot"`
	DistanceKm float64    `json:"distanceKm"`
}

// Nearby filters spots to those within maxKm of the point, sorted nearest
// first.
func Nearby(spots []model.Spot, lat, lon, maxKm float64) []SpotDistance {
	var result []SpotDistance
	for _, spot := range spots {
		d := Distance(lat, lon, spot.Latitude, spot.Longitude)
		if d <= maxKm {
			result = append(result, SpotDistance{Spot: spot, DistanceKm: d})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DistanceKm < result[j].DistanceKm
	})
	return result
}
