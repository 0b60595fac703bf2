// Package domain models weather snapshots and the pure logic evaluated over them.
//
// # Snapshots
//
// A Snapshot is one stored weather observation for a location: current
// conditions, daily and hourly forecasts, an embedded risk analysis, active
// alerts, and provenance. Snapshots are independent aggregates; the only
// cross-record constraint is cache-key uniqueness among non-expired records.
//
// # Freshness and Expiry
//
// Freshness is measured from Current.ObservationTime and is independent of the
// hard ExpiresAt deadline:
//
//	fresh   : now - observationTime < maxAge
//	expired : expiresAt < now
//
// ExpiresAt defaults to CreatedAt + 6h. The cache key is derived from the
// coordinates rounded to three decimal places (~110 m) and CreatedAt truncated
// to a configurable window:
//
//	"40.123_-74.456_1714143600000"
//
// Two writes for the same rounded coordinate inside the same window derive the
// same key and therefore collide.
//
// # Severity Scales
//
// Two distinct ordered enums are used and must not be compared with each other:
//
//	risk level     : very-low < low < moderate < high < extreme
//	alert severity : minor < moderate < severe < extreme
//
// A hazard whose assessment is absent or carries an unrecognized level reports
// the sentinel level "unknown", which ranks below every real level.
//
// # Hazards
//
// Per-hazard assessments are stored as a map keyed by Hazard (flood, storm,
// heatwave, coldwave, drought, wildfire). Assess derives them from current
// conditions and the daily forecast when an upstream provider supplied none.
//
// # Geometry
//
// Coordinates are WGS-84 degrees. Distances use the haversine great-circle
// formula on a mean Earth radius of 6371.0088 km. Radius queries are converted
// to degree bounding boxes for index lookups and then filtered exactly.
package domain
