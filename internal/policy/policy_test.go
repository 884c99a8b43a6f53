package policy

import (
	"testing"

	"paywall/internal/config"
	"paywall/internal/core"
)

func testConfig() *config.Paywall {
	return &config.Paywall{
		Enabled:            true,
		FreeArticleLimit:   3,
		ResetPeriodDays:    30,
		BypassedCategories: []string{"news", "obituaries"},
		BypassedArticles:   []string{"article-free-1"},
	}
}

func TestEvaluate_DecisionOrder(t *testing.T) {
	tests := []struct {
		name       string
		content    core.ContentDescriptor
		tier       core.Tier
		mutate     func(*config.Paywall)
		quotaCount int
		outcome    core.Outcome
		reason     core.Reason
	}{
		{
			name:    "globally disabled allows everything",
			content: core.ContentDescriptor{ID: "a1", TierRequirement: core.Tier2},
			tier:    core.TierFree,
			mutate:  func(p *config.Paywall) { p.Enabled = false },
			outcome: core.OutcomeAllowed,
			reason:  core.ReasonGloballyDisabled,
		},
		{
			name:    "bypassed article",
			content: core.ContentDescriptor{ID: "article-free-1", TierRequirement: core.TierFree},
			tier:    core.TierFree,
			// Quota exhausted; bypass still wins
			quotaCount: 10,
			outcome:    core.OutcomeAllowed,
			reason:     core.ReasonBypassed,
		},
		{
			name:       "bypassed category",
			content:    core.ContentDescriptor{ID: "a2", Categories: []string{"sports", "news"}, TierRequirement: core.TierFree},
			tier:       core.TierFree,
			quotaCount: 10,
			outcome:    core.OutcomeAllowed,
			reason:     core.ReasonBypassed,
		},
		{
			name:    "tier satisfied for gated content",
			content: core.ContentDescriptor{ID: "a3", TierRequirement: core.Tier1},
			tier:    core.Tier2,
			outcome: core.OutcomeAllowed,
			reason:  core.ReasonTierSatisfied,
		},
		{
			name:       "paid tier never metered on free content",
			content:    core.ContentDescriptor{ID: "a4", TierRequirement: core.TierFree},
			tier:       core.Tier1,
			quotaCount: 10,
			outcome:    core.OutcomeAllowed,
			reason:     core.ReasonTierSatisfied,
		},
		{
			name:    "tier insufficient is a hard gate",
			content: core.ContentDescriptor{ID: "a5", TierRequirement: core.Tier2},
			tier:    core.Tier1,
			// Quota untouched, never consulted
			quotaCount: 0,
			outcome:    core.OutcomeDenied,
			reason:     core.ReasonTierInsufficient,
		},
		{
			name:       "free visitor within quota",
			content:    core.ContentDescriptor{ID: "a6", TierRequirement: core.TierFree},
			tier:       core.TierFree,
			quotaCount: 1,
			outcome:    core.OutcomeAllowed,
			reason:     core.ReasonWithinQuota,
		},
		{
			name:       "free visitor over quota",
			content:    core.ContentDescriptor{ID: "a7", TierRequirement: core.TierFree},
			tier:       core.TierFree,
			quotaCount: 3,
			outcome:    core.OutcomeDenied,
			reason:     core.ReasonQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			decision := Evaluate(tt.content, tt.tier, cfg, tt.quotaCount)

			if decision.Outcome != tt.outcome {
				t.Errorf("expected outcome %s, got %s", tt.outcome, decision.Outcome)
			}
			if decision.Reason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, decision.Reason)
			}
		})
	}
}

func TestEvaluate_RemainingFreeViews(t *testing.T) {
	cfg := testConfig()
	content := core.ContentDescriptor{ID: "a1", TierRequirement: core.TierFree}

	// Counts 0, 1, 2 are the pre-record counts of three successive views
	for i, want := range []int{2, 1, 0} {
		decision := Evaluate(content, core.TierFree, cfg, i)
		if decision.Outcome != core.OutcomeAllowed {
			t.Fatalf("view %d: expected ALLOWED, got %s", i+1, decision.Outcome)
		}
		if decision.RemainingFreeViews == nil || *decision.RemainingFreeViews != want {
			t.Errorf("view %d: expected %d remaining, got %v", i+1, want, decision.RemainingFreeViews)
		}
	}

	decision := Evaluate(content, core.TierFree, cfg, 3)
	if decision.Outcome != core.OutcomeDenied || decision.Reason != core.ReasonQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED denial, got %s/%s", decision.Outcome, decision.Reason)
	}
	if decision.RemainingFreeViews == nil || *decision.RemainingFreeViews != 0 {
		t.Errorf("expected 0 remaining on denial, got %v", decision.RemainingFreeViews)
	}
}

func TestMetered(t *testing.T) {
	tests := []struct {
		name    string
		content core.ContentDescriptor
		tier    core.Tier
		mutate  func(*config.Paywall)
		want    bool
	}{
		{
			name:    "free content free visitor is metered",
			content: core.ContentDescriptor{ID: "a1", TierRequirement: core.TierFree},
			tier:    core.TierFree,
			want:    true,
		},
		{
			name:    "disabled paywall is not metered",
			content: core.ContentDescriptor{ID: "a1", TierRequirement: core.TierFree},
			tier:    core.TierFree,
			mutate:  func(p *config.Paywall) { p.Enabled = false },
			want:    false,
		},
		{
			name:    "bypassed content is not metered",
			content: core.ContentDescriptor{ID: "article-free-1", TierRequirement: core.TierFree},
			tier:    core.TierFree,
			want:    false,
		},
		{
			name:    "gated content is not metered",
			content: core.ContentDescriptor{ID: "a1", TierRequirement: core.Tier1},
			tier:    core.TierFree,
			want:    false,
		},
		{
			name:    "paid visitor is not metered",
			content: core.ContentDescriptor{ID: "a1", TierRequirement: core.TierFree},
			tier:    core.Tier2,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			if got := Metered(tt.content, tt.tier, cfg); got != tt.want {
				t.Errorf("expected metered=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestTierSatisfies(t *testing.T) {
	if !core.Tier2.Satisfies(core.Tier1) {
		t.Error("expected TIER_2 to satisfy TIER_1")
	}
	if core.Tier1.Satisfies(core.Tier2) {
		t.Error("expected TIER_1 not to satisfy TIER_2")
	}
	if !core.TierFree.Satisfies(core.TierFree) {
		t.Error("expected FREE to satisfy FREE")
	}
}
