package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports field paths using JSON names, e.g. "current.humidity".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the caller-supplied fields of a snapshot before it is
// stored. It returns a *ValidationError for the first problem found.
func Validate(s Snapshot) error {
	if s.Location.Coordinates == nil {
		return invalid("location.coordinates", "required")
	}
	if s.Current == nil || s.Current.ObservationTime.IsZero() {
		return invalid("current.observationTime", "required")
	}
	if err := validate.Struct(s); err != nil {
		return fromValidator(err)
	}
	if err := validateSeries(s); err != nil {
		return err
	}
	for i, a := range s.Alerts {
		if !a.Start.IsZero() && !a.End.IsZero() && a.Start.After(a.End) {
			return invalid(fmt.Sprintf("alerts[%d]", i), "start %s after end %s",
				a.Start.Format(time.RFC3339), a.End.Format(time.RFC3339))
		}
	}
	if !s.ExpiresAt.IsZero() && !s.CreatedAt.IsZero() && !s.ExpiresAt.After(s.CreatedAt) {
		return invalid("expiresAt", "must be after createdAt")
	}
	return nil
}

// validateSeries enforces strictly increasing forecast dates and hourly times.
func validateSeries(s Snapshot) error {
	for i := 1; i < len(s.Forecast); i++ {
		if !s.Forecast[i].Date.After(s.Forecast[i-1].Date) {
			return invalid(fmt.Sprintf("forecast[%d].date", i), "dates must be strictly increasing")
		}
	}
	for i := 1; i < len(s.Hourly); i++ {
		if !s.Hourly[i].Time.After(s.Hourly[i-1].Time) {
			return invalid(fmt.Sprintf("hourly[%d].time", i), "times must be strictly increasing")
		}
	}
	return nil
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("snapshot", "%v", err)
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Snapshot.")
	reason := fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return invalid(field, "failed %s (got %v)", reason, fe.Value())
}

// Prepare is the normalization pass run inside the store's atomic write. It
// stamps system fields on next using the previously stored version of the
// same snapshot, if any:
//   - CreatedAt is kept from the caller, else from existing, else now.
//   - UpdatedAt is now (never before CreatedAt).
//   - Version is existing.Version+1, or at least 1 for new snapshots.
//   - ExpiresAt defaults to CreatedAt + TTL.
//   - CacheKey is derived from coordinates and CreatedAt when unset.
//   - The embedded analysis is normalized.
func Prepare(next *Snapshot, existing *Snapshot, now time.Time, p Policy) error {
	if next.CreatedAt.IsZero() {
		if existing != nil && !existing.CreatedAt.IsZero() {
			next.CreatedAt = existing.CreatedAt
		} else {
			next.CreatedAt = now
		}
	}
	next.UpdatedAt = now
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}

	if existing != nil {
		next.Version = max(existing.Version, next.Version-1) + 1
	} else if next.Version < 1 {
		next.Version = 1
	}

	if next.ExpiresAt.IsZero() {
		next.ExpiresAt = p.DefaultExpiry(next.CreatedAt)
	}
	if !next.ExpiresAt.After(next.CreatedAt) {
		return invalid("expiresAt", "must be after createdAt")
	}

	if next.CacheKey == "" {
		if c, ok := next.Coordinates(); ok {
			next.CacheKey = p.DeriveCacheKey(c.Latitude, c.Longitude, next.CreatedAt)
		}
	}

	if next.Analysis != nil {
		NormalizeAnalysis(next.Analysis)
	}
	return nil
}
