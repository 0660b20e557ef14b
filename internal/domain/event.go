package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueryKind identifies which engine operation produced a QueryEvent.
type QueryKind string

const (
	QueryMatch     QueryKind = "match"
	QueryAggregate QueryKind = "aggregate"
)

// QueryEvent is an analytics record of one engine query, published to the
// events topic when publishing is enabled.
type QueryEvent struct {
	ID           string    `json:"id"`
	Kind         QueryKind `json:"kind"`
	SourceID     string    `json:"source_id,omitempty"`
	Preset       string    `json:"preset,omitempty"`
	Custom       Weights   `json:"custom_weights,omitempty"`
	ComponentIDs []string  `json:"component_ids,omitempty"`
	ResultCount  int       `json:"result_count"`
	TopMatchID   string    `json:"top_match_id,omitempty"`
	TopScore     float64   `json:"top_score,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewMatchEvent records a FindMatches or MatchRegion call. preset is the
// selection actually used (PresetCustom when custom weights were given).
func NewMatchEvent(sourceID, preset string, custom Weights, matches []Match) QueryEvent {
	ev := QueryEvent{
		ID:          uuid.NewString(),
		Kind:        QueryMatch,
		SourceID:    sourceID,
		Preset:      preset,
		Custom:      custom,
		ResultCount: len(matches),
		OccurredAt:  clock.Now().UTC(),
	}
	if len(matches) > 0 {
		ev.TopMatchID = matches[0].ID
		ev.TopScore = matches[0].Score
	}
	return ev
}

// NewAggregateEvent records an AggregateRegions call.
func NewAggregateEvent(aggregateID string, componentIDs []string, found bool) QueryEvent {
	ev := QueryEvent{
		ID:           uuid.NewString(),
		Kind:         QueryAggregate,
		ComponentIDs: append([]string(nil), componentIDs...),
		OccurredAt:   clock.Now().UTC(),
	}
	if found {
		ev.SourceID = aggregateID
		ev.ResultCount = 1
	}
	return ev
}
