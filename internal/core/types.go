package core

import (
	"time"
)

// Tier is a visitor's membership level, compared against a content item's
// access requirement. Higher tiers satisfy lower requirements.
type Tier int

const (
	TierFree Tier = iota
	Tier1
	Tier2
	Tier3
)

var tierNames = map[Tier]string{
	TierFree: "FREE",
	Tier1:    "TIER_1",
	Tier2:    "TIER_2",
	Tier3:    "TIER_3",
}

var tierValues = map[string]Tier{
	"FREE":   TierFree,
	"TIER_1": Tier1,
	"TIER_2": Tier2,
	"TIER_3": Tier3,
}

// String returns the wire name of the tier
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "FREE"
}

// ParseTier parses a tier name. Unknown values map to FREE so a malformed
// membership signal can only under-gate, never lock a visitor out.
func ParseTier(s string) Tier {
	if t, ok := tierValues[s]; ok {
		return t
	}
	return TierFree
}

// Satisfies reports whether the visitor tier meets the given requirement
func (t Tier) Satisfies(required Tier) bool {
	return t >= required
}

// Visitor is the resolved identity of the current request
type Visitor struct {
	// ID is the authenticated user id or a durable anonymous token
	ID string
	// Tier is the membership-tier signal from the billing reconciler
	Tier Tier
	// Authenticated is true when ID comes from a valid session
	Authenticated bool
}

// ContentDescriptor describes the content unit under evaluation
type ContentDescriptor struct {
	ID              string   `json:"contentId"`
	Categories      []string `json:"categories,omitempty"`
	TierRequirement Tier     `json:"-"`
}

// Outcome is the result of an access evaluation
type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeDenied  Outcome = "DENIED"
)

// Reason explains why an evaluation reached its outcome
type Reason string

const (
	ReasonGloballyDisabled Reason = "GLOBALLY_DISABLED"
	ReasonBypassed         Reason = "BYPASSED"
	ReasonTierSatisfied    Reason = "TIER_SATISFIED"
	ReasonWithinQuota      Reason = "WITHIN_QUOTA"
	ReasonQuotaExceeded    Reason = "QUOTA_EXCEEDED"
	ReasonTierInsufficient Reason = "TIER_INSUFFICIENT"
)

// AccessDecision is the outcome of a single paywall evaluation
type AccessDecision struct {
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason"`
	// RemainingFreeViews is set only for metered (quota-based) outcomes
	RemainingFreeViews *int `json:"remainingFreeViews,omitempty"`
}

// Allowed reports whether the decision grants access
func (d AccessDecision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// QuotaRecord is the per-visitor quota state for the current rolling window.
// The viewed-content set itself lives inside the quota store (membership is
// queried via HasViewed); the record carries its cardinality.
type QuotaRecord struct {
	VisitorID       string
	ViewCount       int
	WindowStartedAt time.Time
	BlockedCount    int
}

// ViewEvent is the analytics event emitted once per evaluation
type ViewEvent struct {
	ContentID string    `json:"contentId"`
	VisitorID string    `json:"visitorId"`
	Blocked   bool      `json:"blocked"`
	Timestamp time.Time `json:"timestamp"`
}
