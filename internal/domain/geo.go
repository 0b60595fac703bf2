package domain

import (
	"math"
)

const (
	// EarthRadiusKm is the IUGG mean Earth radius.
	EarthRadiusKm = 6371.0088
	// kmPerDegreeLat is the length of one degree of latitude.
	kmPerDegreeLat = 111.32
)

// Valid reports whether c lies inside the WGS-84 coordinate ranges.
func (c Coordinates) Valid() bool {
	return c.Longitude >= -180 && c.Longitude <= 180 && c.Latitude >= -90 && c.Latitude <= 90 &&
		!math.IsNaN(c.Longitude) && !math.IsNaN(c.Latitude)
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BBox is an axis-aligned box in degrees. MinLon <= MaxLon always; boxes that
// cross the antimeridian are represented as two boxes.
type BBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// Contains reports whether c lies in b, edges included.
func (b BBox) Contains(c Coordinates) bool {
	return c.Longitude >= b.MinLon && c.Longitude <= b.MaxLon &&
		c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat
}

// RadiusBounds converts a radius in kilometres into degree boxes that cover
// every point within radiusKm of center. The boxes are a superset; callers
// filter exactly with HaversineKm.
func RadiusBounds(center Coordinates, radiusKm float64) []BBox {
	dLat := radiusKm / kmPerDegreeLat
	minLat := center.Latitude - dLat
	maxLat := center.Latitude + dLat

	// Near a pole the circle wraps every meridian.
	if minLat <= -90 || maxLat >= 90 {
		return []BBox{{MinLon: -180, MinLat: math.Max(minLat, -90), MaxLon: 180, MaxLat: math.Min(maxLat, 90)}}
	}

	// Use the widest latitude in the box so the longitude span is never short.
	widest := math.Max(math.Abs(minLat), math.Abs(maxLat)) * math.Pi / 180
	dLon := radiusKm / (kmPerDegreeLat * math.Cos(widest))
	if dLon >= 180 {
		return []BBox{{MinLon: -180, MinLat: minLat, MaxLon: 180, MaxLat: maxLat}}
	}

	minLon := center.Longitude - dLon
	maxLon := center.Longitude + dLon
	switch {
	case minLon < -180:
		return []BBox{
			{MinLon: minLon + 360, MinLat: minLat, MaxLon: 180, MaxLat: maxLat},
			{MinLon: -180, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat},
		}
	case maxLon > 180:
		return []BBox{
			{MinLon: minLon, MinLat: minLat, MaxLon: 180, MaxLat: maxLat},
			{MinLon: -180, MinLat: minLat, MaxLon: maxLon - 360, MaxLat: maxLat},
		}
	default:
		return []BBox{{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}}
	}
}

// Polygon is a single ring of vertices. The closing vertex may be repeated or
// omitted. Rings crossing the antimeridian are not supported.
type Polygon []Coordinates

// Validate requires at least three distinct in-range vertices and rejects
// rings with an edge spanning more than 180 degrees of longitude, which
// Contains would evaluate on the wrong side of the globe.
func (p Polygon) Validate() error {
	ring := p.ring()
	if len(ring) < 3 {
		return invalid("boundary", "polygon needs at least 3 distinct vertices, got %d", len(ring))
	}
	for i, c := range ring {
		if !c.Valid() {
			return invalid("boundary", "vertex %d out of range (%g, %g)", i, c.Longitude, c.Latitude)
		}
	}
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if math.Abs(b.Longitude-a.Longitude) > 180 {
			return invalid("boundary", "edge %d crosses the antimeridian", i)
		}
	}
	return nil
}

// Bounds returns the bounding box of the ring.
func (p Polygon) Bounds() BBox {
	if len(p) == 0 {
		return BBox{}
	}
	b := BBox{MinLon: p[0].Longitude, MaxLon: p[0].Longitude, MinLat: p[0].Latitude, MaxLat: p[0].Latitude}
	for _, c := range p[1:] {
		b.MinLon = math.Min(b.MinLon, c.Longitude)
		b.MaxLon = math.Max(b.MaxLon, c.Longitude)
		b.MinLat = math.Min(b.MinLat, c.Latitude)
		b.MaxLat = math.Max(b.MaxLat, c.Latitude)
	}
	return b
}

// Contains uses even-odd ray casting in the lon/lat plane.
func (p Polygon) Contains(c Coordinates) bool {
	ring := p.ring()
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Latitude > c.Latitude) != (b.Latitude > c.Latitude) {
			x := (b.Longitude-a.Longitude)*(c.Latitude-a.Latitude)/(b.Latitude-a.Latitude) + a.Longitude
			if c.Longitude < x {
				inside = !inside
			}
		}
	}
	return inside
}

// ring drops a repeated closing vertex.
func (p Polygon) ring() Polygon {
	if len(p) > 1 && p[0] == p[len(p)-1] {
		return p[:len(p)-1]
	}
	return p
}
