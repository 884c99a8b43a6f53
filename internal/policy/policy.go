// Package policy holds the pure access decision function. It performs no I/O
// and mutates nothing; everything it needs arrives as arguments.
package policy

import (
	"paywall/internal/config"
	"paywall/internal/core"
)

// Evaluate decides access for one content view. The rule order matters:
// global-disable and bypasses short-circuit before the tier gate, and the
// tier gate before the quota, so gated-off content never consumes a free
// view slot.
func Evaluate(content core.ContentDescriptor, visitorTier core.Tier, cfg *config.Paywall, quotaCount int) core.AccessDecision {
	if !cfg.Enabled {
		return core.AccessDecision{Outcome: core.OutcomeAllowed, Reason: core.ReasonGloballyDisabled}
	}

	if cfg.BypassesArticle(content.ID) || cfg.BypassesCategory(content.Categories) {
		return core.AccessDecision{Outcome: core.OutcomeAllowed, Reason: core.ReasonBypassed}
	}

	// A paid tier satisfies FREE content too: paying members never spend a
	// free-view slot, so the quota rules below only ever see free visitors
	// on free content
	if visitorTier.Satisfies(content.TierRequirement) && (content.TierRequirement != core.TierFree || visitorTier != core.TierFree) {
		return core.AccessDecision{Outcome: core.OutcomeAllowed, Reason: core.ReasonTierSatisfied}
	}

	// Tier-gated content is a hard gate, not a metered one: quota is
	// irrelevant when the visitor's tier falls short
	if content.TierRequirement != core.TierFree {
		return core.AccessDecision{Outcome: core.OutcomeDenied, Reason: core.ReasonTierInsufficient}
	}

	if quotaCount < cfg.FreeArticleLimit {
		remaining := cfg.FreeArticleLimit - quotaCount - 1
		if remaining < 0 {
			remaining = 0
		}
		return core.AccessDecision{
			Outcome:            core.OutcomeAllowed,
			Reason:             core.ReasonWithinQuota,
			RemainingFreeViews: &remaining,
		}
	}

	zero := 0
	return core.AccessDecision{
		Outcome:            core.OutcomeDenied,
		Reason:             core.ReasonQuotaExceeded,
		RemainingFreeViews: &zero,
	}
}

// Metered reports whether the decision for this content would consult the
// quota at all. The gateway uses it to skip store I/O for evaluations the
// policy resolves without counting (disabled, bypassed, tier-satisfied,
// tier-gated).
func Metered(content core.ContentDescriptor, visitorTier core.Tier, cfg *config.Paywall) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.BypassesArticle(content.ID) || cfg.BypassesCategory(content.Categories) {
		return false
	}
	if content.TierRequirement != core.TierFree {
		return false
	}
	return visitorTier == core.TierFree
}
