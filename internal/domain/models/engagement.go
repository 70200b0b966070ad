package models

import (
	"fmt"
	"time"
)

// EngagementKind identifies one class of measured activity.
type EngagementKind string

const (
	KindPost           EngagementKind = "post"
	KindLike           EngagementKind = "like"
	KindComment        EngagementKind = "comment"
	KindRating         EngagementKind = "rating"
	KindSpecialContent EngagementKind = "specialContent"
	KindPrediction     EngagementKind = "prediction"
	KindStake          EngagementKind = "stake"
)

// EngagementKinds lists every recognised kind in a stable order.
var EngagementKinds = []EngagementKind{
	KindPost, KindLike, KindComment, KindRating, KindSpecialContent, KindPrediction, KindStake,
}

// ParseEngagementKind reports whether s names a recognised kind.
func ParseEngagementKind(s string) (EngagementKind, bool) {
	for _, k := range EngagementKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// MaxExternalScore is the upper bound of a normalised attestation score.
const MaxExternalScore = 10000

// EngagementSnapshot is the per-token, per-tick input of the price engine.
// Available is false when the Content Store could not be read; in that case
// CompositeScore carries no meaning and must not be treated as zero activity.
type EngagementSnapshot struct {
	TokenID        string
	Counts         map[EngagementKind]int64
	ExternalScore  *int64
	CompositeScore float64
	Available      bool
	Since          time.Time
	Until          time.Time
}

// HasExternalScore reports whether the attestation score is present.
func (s EngagementSnapshot) HasExternalScore() bool {
	return s.ExternalScore != nil
}

// EngagementEvent is one activity record published on the engagement topic.
type EngagementEvent struct {
	TokenID   string `json:"tokenId"`
	Kind      string `json:"kind"`
	Count     int64  `json:"count"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// Validate checks the event shape before it is counted.
func (e EngagementEvent) Validate() error {
	if e.TokenID == "" {
		return fmt.Errorf("%w: tokenId is required", ErrValidation)
	}
	if _, ok := ParseEngagementKind(e.Kind); !ok {
		return fmt.Errorf("%w: unknown engagement kind %q", ErrValidation, e.Kind)
	}
	if e.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrValidation)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	return nil
}
