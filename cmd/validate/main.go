// Command validate checks a snapshot fixture end to end against the real
// validation, storage and query paths. It loads every snapshot into an
// in-memory store on a fixed clock and verifies cache-key uniqueness, round
// trips, proximity ordering, risk filtering and alert windows.
//
// Usage:
//
//	go run ./cmd/validate -fixture data/mock/snapshots.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/memory"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
	"github.com/couchcryptid/weather-snapshot-cache/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	fixture := flag.String("fixture", "", "path to the snapshot JSON fixture written by genmock")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*fixture))
}

func run(path string) int {
	fmt.Println("=== Snapshot Fixture Validation ===")
	fmt.Println()

	snapshots, err := loadJSON(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: fixture is empty")
		return 1
	}

	// The store clock sits at the newest creation time so every snapshot is live.
	var now time.Time
	for i := range snapshots {
		if snapshots[i].CreatedAt.After(now) {
			now = snapshots[i].CreatedAt
		}
	}
	clock := clockwork.NewFakeClockAt(now)
	st := store.New(memory.New(1), clock, store.DefaultOptions(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	defer st.Close()

	ctx := context.Background()
	phases := []*phase{
		validateSchema(snapshots),
		validateRoundTrip(ctx, st, snapshots),
		validateProximity(ctx, st, snapshots, now),
		validateRiskFilters(ctx, st, snapshots),
		validateAlerts(st, snapshots, now),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Snapshots: %d, store clock: %s\n", len(snapshots), now.Format(time.RFC3339))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON(path string) ([]domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []domain.Snapshot
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Schema ──

func validateSchema(snapshots []domain.Snapshot) *phase {
	p := &phase{name: "Phase 1: Schema (validation rules)"}

	ids := map[string]bool{}
	for i := range snapshots {
		s := snapshots[i]
		if s.ID == "" {
			p.errorf("snapshot %d: missing id", i)
		} else if ids[s.ID] {
			p.errorf("snapshot %d: duplicate id %s", i, s.ID)
		}
		ids[s.ID] = true

		if err := domain.Validate(s); err != nil {
			p.errorf("snapshot %s: %v", s.ID, err)
		}
		if s.Analysis == nil {
			p.errorf("snapshot %s: missing analysis", s.ID)
			continue
		}
		if !s.Analysis.RiskAssessment.Overall.Valid() {
			p.errorf("snapshot %s: invalid overall level %q", s.ID, s.Analysis.RiskAssessment.Overall)
		}
		for _, h := range domain.Hazards {
			if _, ok := s.Analysis.RiskAssessment.Hazards[h]; !ok {
				p.errorf("snapshot %s: missing %s assessment", s.ID, h)
			}
		}
	}
	return p
}

// ── Phase 2: Store Round Trip ──

func validateRoundTrip(ctx context.Context, st *store.Store, snapshots []domain.Snapshot) *phase {
	p := &phase{name: "Phase 2: Store Round Trip (put/get)"}

	keys := map[string]string{}
	for i := range snapshots {
		in := snapshots[i]
		saved, err := st.Put(ctx, in)
		if err != nil {
			p.errorf("put %s: %v", in.ID, err)
			continue
		}
		if saved.Version != 1 {
			p.errorf("put %s: version %d, want 1", in.ID, saved.Version)
		}
		if saved.CacheKey == "" {
			p.errorf("put %s: no cache key derived", in.ID)
		} else if other, dup := keys[saved.CacheKey]; dup {
			p.errorf("put %s: cache key %s already held by %s", in.ID, saved.CacheKey, other)
		}
		keys[saved.CacheKey] = in.ID

		got, err := st.Get(ctx, in.ID)
		if err != nil {
			p.errorf("get %s: %v", in.ID, err)
			continue
		}
		if diff := cmp.Diff(saved, got, cmpopts.EquateEmpty()); diff != "" {
			p.errorf("get %s: mismatch (-put +get):\n%s", in.ID, diff)
		}
		if !got.CreatedAt.Equal(in.CreatedAt) {
			p.errorf("get %s: createdAt %s, want %s", in.ID, got.CreatedAt, in.CreatedAt)
		}
		if !got.ExpiresAt.After(got.CreatedAt) {
			p.errorf("get %s: expiresAt not after createdAt", in.ID)
		}
	}
	return p
}

// ── Phase 3: Proximity ──

func validateProximity(ctx context.Context, st *store.Store, snapshots []domain.Snapshot, now time.Time) *phase {
	p := &phase{name: "Phase 3: Proximity (nearby ordering)"}

	policy := domain.DefaultPolicy()
	byStation := map[string][]domain.Snapshot{}
	var oldest time.Time
	for i := range snapshots {
		s := snapshots[i]
		expires := s.ExpiresAt
		if expires.IsZero() {
			expires = policy.DefaultExpiry(s.CreatedAt)
		}
		if !expires.After(now) {
			continue
		}
		byStation[s.Location.Name] = append(byStation[s.Location.Name], s)
		if oldest.IsZero() || s.ObservationTime().Before(oldest) {
			oldest = s.ObservationTime()
		}
	}
	maxAge := now.Sub(oldest) + time.Minute

	for name, group := range byStation {
		c := *group[0].Location.Coordinates
		found, err := st.FindNearby(ctx, c.Longitude, c.Latitude, 1, maxAge)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if len(found) != len(group) {
			p.errorf("%s: found %d snapshots within 1km, want %d", name, len(found), len(group))
			continue
		}
		for i := 1; i < len(found); i++ {
			if found[i].ObservationTime().After(found[i-1].ObservationTime()) {
				p.errorf("%s: results not newest first at index %d", name, i)
			}
		}
	}

	// Taveuni sits east of the antimeridian, Suva west of it.
	if suva, ok := byStation["Suva"]; ok {
		c := *suva[0].Location.Coordinates
		found, err := st.FindNearby(ctx, c.Longitude, c.Latitude, 300, maxAge)
		if err != nil {
			p.errorf("antimeridian: %v", err)
		} else if !containsStation(found, "Taveuni") {
			p.errorf("antimeridian: Taveuni not found within 300km of Suva")
		}
	}
	return p
}

func containsStation(snapshots []domain.Snapshot, name string) bool {
	for i := range snapshots {
		if snapshots[i].Location.Name == name {
			return true
		}
	}
	return false
}

// ── Phase 4: Risk Filters ──

func validateRiskFilters(ctx context.Context, st *store.Store, snapshots []domain.Snapshot) *phase {
	p := &phase{name: "Phase 4: Risk Filters (high-risk areas)"}

	for _, h := range append([]domain.Hazard{domain.HazardOverall}, domain.Hazards...) {
		want := 0
		for i := range snapshots {
			if snapshots[i].HazardLevel(h).AtLeast(domain.RiskHigh) {
				want++
			}
		}
		found, err := st.HighRiskAreas(ctx, h, domain.RiskHigh)
		if err != nil {
			p.errorf("%s: %v", h, err)
			continue
		}
		if len(found) != want {
			p.errorf("%s: %d high-risk snapshots, want %d", h, len(found), want)
		}
		if !sort.SliceIsSorted(found, func(i, j int) bool {
			return found[i].AnalysisConfidence() > found[j].AnalysisConfidence()
		}) {
			p.errorf("%s: results not ordered by confidence", h)
		}
	}
	return p
}

// ── Phase 5: Alerts ──

func validateAlerts(st *store.Store, snapshots []domain.Snapshot, now time.Time) *phase {
	p := &phase{name: "Phase 5: Alerts (active windows)"}

	for i := range snapshots {
		s := snapshots[i]
		active := st.ActiveAlerts(s)

		want := 0
		for _, a := range s.Alerts {
			if a.IsActiveAt(now) {
				want++
			}
		}
		if len(active) != want {
			p.errorf("snapshot %s: %d active alerts, want %d", s.ID, len(active), want)
		}
		for j := 1; j < len(active); j++ {
			if active[j].Severity.Weight() > active[j-1].Severity.Weight() {
				p.errorf("snapshot %s: alerts not ordered by severity", s.ID)
			}
		}
	}
	return p
}
