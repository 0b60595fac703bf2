// Package sqlrow maps snapshots to the column layout shared by the SQL
// repositories. The full snapshot is stored as a JSON body; the remaining
// columns, and one snapshot_risks row per assessed hazard, exist only so that
// queries can be narrowed inside the database.
package sqlrow

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// Row is one snapshots table row.
type Row struct {
	ID         string
	CacheKey   *string
	Longitude  *float64
	Latitude   *float64
	NameLower  string
	CityLower  string
	ObservedAt int64
	CreatedAt  int64
	ExpiresAt  int64
	Body       []byte
	Risks      []Risk
}

// Risk is one snapshot_risks row. Only hazards with a real level are stored.
type Risk struct {
	Hazard string
	Rank   int
}

// FromSnapshot derives the indexed columns from s and encodes its body.
func FromSnapshot(s domain.Snapshot) (Row, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Row{}, fmt.Errorf("encode snapshot %s: %w", s.ID, err)
	}
	r := Row{
		ID:         s.ID,
		NameLower:  strings.ToLower(s.Location.Name),
		CityLower:  strings.ToLower(s.Location.City),
		ObservedAt: Nanos(s.ObservationTime()),
		CreatedAt:  Nanos(s.CreatedAt),
		ExpiresAt:  Nanos(s.ExpiresAt),
		Body:       body,
	}
	for _, h := range append([]domain.Hazard{domain.HazardOverall}, domain.Hazards...) {
		if rank := s.HazardLevel(h).Rank(); rank > 0 {
			r.Risks = append(r.Risks, Risk{Hazard: string(h), Rank: rank})
		}
	}
	if s.CacheKey != "" {
		key := s.CacheKey
		r.CacheKey = &key
	}
	if c, ok := s.Coordinates(); ok {
		lon, lat := c.Longitude, c.Latitude
		r.Longitude, r.Latitude = &lon, &lat
	}
	return r, nil
}

// Decode restores a snapshot from its stored body.
func Decode(body []byte) (domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

var (
	minNanos = time.Unix(0, math.MinInt64)
	maxNanos = time.Unix(0, math.MaxInt64)
)

// Nanos stores instants as Unix nanoseconds so comparisons in SQL agree with
// time.Time comparisons. The zero time maps to 0. Instants outside the int64
// nanosecond range (years before 1678 or after 2262) clamp to its ends, which
// keeps them on the correct side of every in-range instant.
func Nanos(t time.Time) int64 {
	switch {
	case t.IsZero():
		return 0
	case t.Before(minNanos):
		return math.MinInt64
	case t.After(maxNanos):
		return math.MaxInt64
	default:
		return t.UnixNano()
	}
}

// Dialect holds the SQL differences between backends.
type Dialect struct {
	// Placeholder returns the bind marker for the n-th argument, starting at 1.
	Placeholder func(n int) string
	// Position names the function returning the 1-based index of a substring,
	// or 0 if absent.
	Position string
}

var (
	SQLite   = Dialect{Placeholder: func(int) string { return "?" }, Position: "instr"}
	Postgres = Dialect{Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }, Position: "strpos"}
)

// Filter renders q as a WHERE clause, numbering arguments after the first
// offset binds.
func Filter(q domain.Query, d Dialect, offset int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(offset + len(args))
	}

	if len(q.Bounds) > 0 {
		boxes := make([]string, 0, len(q.Bounds))
		for _, b := range q.Bounds {
			boxes = append(boxes, fmt.Sprintf("(longitude BETWEEN %s AND %s AND latitude BETWEEN %s AND %s)",
				bind(b.MinLon), bind(b.MaxLon), bind(b.MinLat), bind(b.MaxLat)))
		}
		clauses = append(clauses, "("+strings.Join(boxes, " OR ")+")")
	}
	if q.NameContains != "" {
		p := strings.ToLower(q.NameContains)
		clauses = append(clauses, fmt.Sprintf("(%s OR %s)", d.contains("name_lower", bind(p)), d.contains("city_lower", bind(p))))
	}
	if !q.ObservedSince.IsZero() {
		clauses = append(clauses, "observed_at >= "+bind(Nanos(q.ObservedSince)))
	}
	if !q.ActiveAt.IsZero() {
		clauses = append(clauses, "expires_at > "+bind(Nanos(q.ActiveAt)))
	}
	if q.Hazard != "" {
		// Unknown levels are never stored, and extreme has the top rank, so a
		// rank floor of 1 matches RiskLevel.AtLeast.
		clauses = append(clauses, fmt.Sprintf("id IN (SELECT snapshot_id FROM snapshot_risks WHERE hazard = %s AND risk_rank >= %s)",
			bind(string(q.Hazard)), bind(max(q.MinRisk.Rank(), 1))))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// contains avoids LIKE so that % and _ in the pattern match literally.
func (d Dialect) contains(column, marker string) string {
	return fmt.Sprintf("%s(%s, %s) > 0", d.Position, column, marker)
}
