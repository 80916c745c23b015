package trigger

import "testing"

func TestSeverityOrdering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Fatal("critical should be at least high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Fatal("low should not be at least medium")
	}
	if !SeverityMedium.AtLeast(SeverityMedium) {
		t.Fatal("severity should be at least itself")
	}
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i, s := range order {
		if s.Rank() != i {
			t.Fatalf("rank(%s) = %d, want %d", s, s.Rank(), i)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	eval := Aggregate(nil)
	if eval.ShouldPause {
		t.Fatal("no triggers should not pause")
	}
	if eval.AuditRequired {
		t.Fatal("no triggers should not require audit")
	}
	if eval.MaxSeverity() != SeverityLow {
		t.Fatalf("empty max severity = %s, want low", eval.MaxSeverity())
	}
	if eval.Flags() != "" {
		t.Fatalf("empty flags = %q, want empty", eval.Flags())
	}
}

func TestAggregateSingleLowTriggerPauses(t *testing.T) {
	eval := Aggregate([]Trigger{
		{Kind: KindDisproportionateScope, Severity: SeverityMedium, Confidence: 0.7},
	})
	if !eval.ShouldPause {
		t.Fatal("one trigger must pause")
	}
	if eval.AuditRequired {
		t.Fatal("medium trigger alone should not require audit")
	}
}

func TestAggregateAuditOnHigh(t *testing.T) {
	eval := Aggregate([]Trigger{
		{Kind: KindEmotionalSpike, Severity: SeverityLow},
		{Kind: KindCapabilityExceeded, Severity: SeverityHigh},
	})
	if !eval.AuditRequired {
		t.Fatal("high trigger must require audit")
	}
	if eval.MaxSeverity() != SeverityHigh {
		t.Fatalf("max severity = %s, want high", eval.MaxSeverity())
	}
}

func TestHasKindAtLeast(t *testing.T) {
	eval := Aggregate([]Trigger{
		{Kind: KindEmotionalSpike, Severity: SeverityMedium},
		{Kind: KindCooldownActive, Severity: SeverityHigh},
	})
	if eval.HasKindAtLeast(KindEmotionalSpike, SeverityHigh) {
		t.Fatal("medium spike should not satisfy high")
	}
	if !eval.HasKindAtLeast(KindEmotionalSpike, SeverityMedium) {
		t.Fatal("medium spike should satisfy medium")
	}
	if !eval.HasKindAtLeast(KindCooldownActive, SeverityHigh) {
		t.Fatal("high cooldown should satisfy high")
	}
	if eval.HasKindAtLeast(KindUncertaintyDetected, SeverityLow) {
		t.Fatal("absent kind should never match")
	}
}

func TestFlagsFormat(t *testing.T) {
	eval := Aggregate([]Trigger{
		{Kind: KindEmotionalSpike, Severity: SeverityCritical},
		{Kind: KindCapabilityExceeded, Severity: SeverityHigh},
	})
	want := "emotional_spike:critical|capability_exceeded:high"
	if got := eval.Flags(); got != want {
		t.Fatalf("flags = %q, want %q", got, want)
	}
}
