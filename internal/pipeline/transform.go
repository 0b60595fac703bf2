package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// SnapshotTransformer implements Transformer: it decodes the message, fills
// in the location through the geocoder, and derives an analysis when the
// producer sent none.
type SnapshotTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a SnapshotTransformer. Pass a nil geocoder to disable
// location enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *SnapshotTransformer {
	return &SnapshotTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *SnapshotTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Snapshot, error) {
	snap, err := domain.ParseSnapshot(raw)
	if err != nil {
		return domain.Snapshot{}, err
	}
	// Assigned here rather than in the store so a retried load reuses the id.
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	snap = domain.EnrichLocation(ctx, snap, t.geocoder, t.logger)

	if snap.Analysis == nil {
		a := domain.Assess(snap)
		snap.Analysis = &a
	}
	return snap, nil
}
