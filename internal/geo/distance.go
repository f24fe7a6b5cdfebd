// Package geo holds the configured search regions and great-circle helpers
// used to assign restaurants to neighborhoods.
package geo

import "math"

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371e3

// Distance returns the haversine great-circle distance in meters between two
// WGS84 coordinates.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Nearest returns the region whose center is closest to (lat, lng). ok is
// false when regions is empty.
func Nearest(regions []Region, lat, lng float64) (Region, bool) {
	var (
		best  Region
		bestD = math.Inf(1)
	)
	for _, r := range regions {
		if d := Distance(lat, lng, r.Lat, r.Lng); d < bestD {
			best, bestD = r, d
		}
	}
	return best, len(regions) > 0
}
