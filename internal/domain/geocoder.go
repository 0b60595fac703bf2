package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat        float64
	Lon        float64
	PlaceName  string
	City       string
	State      string
	Country    string // ISO 3166-1 alpha-2, upper case
	Confidence float64 // 0.0–1.0 provider confidence score
}

// Empty reports whether the provider found nothing.
func (r GeocodingResult) Empty() bool {
	return r.PlaceName == "" && r.City == "" && r.Lat == 0 && r.Lon == 0
}

// Geocoder resolves between place names and coordinates.
type Geocoder interface {
	// ForwardGeocode converts a place name (and optional country) to coordinates.
	ForwardGeocode(ctx context.Context, name, country string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
