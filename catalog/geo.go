package catalog

import "math"

const earthRadiusMeters = 6371000.0

// DefaultMaxDistance is the search radius used when a caller gives none.
const DefaultMaxDistance = 10000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Distance is the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// boundingBox returns a lat/lng box that contains every point within radius
// meters of center. It is a coarse SQL prefilter; Distance decides.
func boundingBox(center Point, radius float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radius / earthRadiusMeters * 180 / math.Pi
	minLat = math.Max(-90, center.Lat-dLat)
	maxLat = math.Min(90, center.Lat+dLat)

	cos := math.Cos(center.Lat * math.Pi / 180)
	if cos < 1e-6 || maxLat >= 90 || minLat <= -90 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cos
	// no antimeridian wrapping; a box crossing it just widens to every longitude
	if dLng >= 180 || center.Lng-dLng < -180 || center.Lng+dLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, center.Lng - dLng, center.Lng + dLng
}
