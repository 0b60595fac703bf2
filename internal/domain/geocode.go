package domain

import (
	"context"
	"log/slog"
)

// EnrichLocation fills in the location of an ingested snapshot. Snapshots
// with a name but no coordinates are forward geocoded; snapshots with
// coordinates but no name are reverse geocoded. Lookup failures are logged
// and the snapshot is returned unchanged, leaving validation to reject it if
// coordinates are still missing.
func EnrichLocation(ctx context.Context, s Snapshot, geocoder Geocoder, logger *slog.Logger) Snapshot {
	if geocoder == nil {
		return s
	}
	loc := s.Location

	if loc.Coordinates == nil && loc.Name != "" {
		result, err := geocoder.ForwardGeocode(ctx, loc.Name, loc.Country)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"snapshot_id", s.ID,
				"location", loc.Name,
				"country", loc.Country,
				"error", err,
			)
			return s
		}
		if result.Lat == 0 && result.Lon == 0 {
			return s
		}
		loc.Coordinates = &Coordinates{Longitude: result.Lon, Latitude: result.Lat}
		fillPlace(&loc, result)
		s.Location = loc
		return s
	}

	if loc.Coordinates != nil && loc.Name == "" {
		result, err := geocoder.ReverseGeocode(ctx, loc.Coordinates.Latitude, loc.Coordinates.Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"snapshot_id", s.ID,
				"lat", loc.Coordinates.Latitude,
				"lon", loc.Coordinates.Longitude,
				"error", err,
			)
			return s
		}
		if result.Empty() {
			return s
		}
		loc.Name = result.PlaceName
		fillPlace(&loc, result)
		s.Location = loc
	}
	return s
}

// fillPlace copies place details into empty location fields only.
func fillPlace(loc *Location, r GeocodingResult) {
	if loc.City == "" {
		loc.City = r.City
	}
	if loc.State == "" {
		loc.State = r.State
	}
	if loc.Country == "" {
		loc.Country = r.Country
	}
}
