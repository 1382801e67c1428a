package geo

import (
	"errors"
	"math"
)

// EarthRadiusM is the mean earth radius PostGIS uses for spherical geography math.
const EarthRadiusM = 6371008.7714

// MetresPerDegree is the length of one degree of latitude.
const MetresPerDegree = EarthRadiusM * math.Pi / 180

var ErrInvalidPoint = errors.New("invalid coordinates")

// Point is a WGS84 position. Field order follows GeoJSON: longitude first.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lng) || math.IsNaN(p.Lat) || math.IsInf(p.Lng, 0) || math.IsInf(p.Lat, 0) {
		return ErrInvalidPoint
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidPoint
	}
	return nil
}

// HaversineKm returns the great-circle distance between two lat/lng pairs in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineM(lat1, lng1, lat2, lng2) / 1000
}

func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// DistanceM is the spherical distance between two points in metres.
func DistanceM(a, b Point) float64 {
	return HaversineM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Offset returns the point reached by travelling distanceM metres from p on the
// given bearing (degrees clockwise from north).
func Offset(p Point, distanceM, bearingDeg float64) Point {
	delta := distanceM / EarthRadiusM
	theta := toRad(bearingDeg)
	phi1 := toRad(p.Lat)
	lambda1 := toRad(p.Lng)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	lng := toDeg(lambda2)
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return Point{Lng: lng, Lat: toDeg(phi2)}
}

// Box is a lat/lng rectangle. MinLng may exceed MaxLng when the box crosses the antimeridian.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle guaranteed to contain every point within radiusM of p.
func BoundingBox(p Point, radiusM float64) Box {
	dLat := toDeg(radiusM / EarthRadiusM)
	minLat := math.Max(p.Lat-dLat, -90)
	maxLat := math.Min(p.Lat+dLat, 90)

	// widest longitude span happens at the latitude furthest from the equator
	farLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	cos := math.Cos(toRad(farLat))
	if cos < 1e-6 || dLat/cos >= 180 {
		return Box{MinLat: minLat, MaxLat: maxLat, MinLng: -180, MaxLng: 180}
	}
	dLng := dLat / cos

	minLng := p.Lng - dLng
	maxLng := p.Lng + dLng
	if minLng < -180 {
		minLng += 360
	}
	if maxLng > 180 {
		maxLng -= 360
	}
	return Box{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
