package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawEvent is an undecoded ingestion message from any transport.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseSnapshot decodes a raw event value into a Snapshot. Unknown fields are
// rejected so schema drift from upstream providers surfaces early.
func ParseSnapshot(raw RawEvent) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.DisallowUnknownFields()

	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if s.ID == "" && len(raw.Key) > 0 {
		s.ID = string(raw.Key)
	}
	return s, nil
}

// RiskNotification is published when a stored snapshot reaches the
// notification threshold.
type RiskNotification struct {
	SnapshotID string      `json:"snapshotId"`
	CacheKey   string      `json:"cacheKey"`
	Location   Location    `json:"location"`
	Risk       RiskSummary `json:"risk"`
	ObservedAt time.Time   `json:"observedAt"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}

// NewRiskNotification builds the notification payload for s.
func NewRiskNotification(s Snapshot) RiskNotification {
	return RiskNotification{
		SnapshotID: s.ID,
		CacheKey:   s.CacheKey,
		Location:   s.Location,
		Risk:       Summarize(s),
		ObservedAt: s.ObservationTime(),
		ExpiresAt:  s.ExpiresAt,
	}
}
