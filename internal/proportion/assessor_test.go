package proportion

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/trigger"
)

func testAssessor() *Assessor {
	return NewAssessor(zap.NewNop())
}

func TestAssessSmallAction(t *testing.T) {
	res := testAssessor().Assess("Format text with proper indentation")
	// every factor bottoms out in the lowest bucket: score = 0.25
	if math.Abs(res.Score-0.25) > 1e-9 {
		t.Fatalf("score = %.4f, want 0.25", res.Score)
	}
	if res.Disproportionate {
		t.Fatal("small action should not be disproportionate")
	}
	if len(res.RedLines) != 0 {
		t.Fatalf("red lines = %v, want none", res.RedLines)
	}
	if res.Mitigations != nil {
		t.Fatalf("mitigations = %v, want none", res.Mitigations)
	}
	if got := testAssessor().Triggers(res); got != nil {
		t.Fatalf("expected no triggers, got %v", got)
	}
}

func TestAssessWideDeploy(t *testing.T) {
	res := testAssessor().Assess("Deploy distributed microservices architecture to production")
	// impact 1.0*.30 + complexity 1.0*.25 + time 1.0*.15 + deps 0.5*.15 + automation 0.25*.15
	want := 0.30 + 0.25 + 0.15 + 0.075 + 0.0375
	if math.Abs(res.Score-want) > 1e-9 {
		t.Fatalf("score = %.4f, want %.4f", res.Score, want)
	}
	if !res.Disproportionate {
		t.Fatal("expected disproportionate")
	}
	if len(res.RedLines) != 1 || res.RedLines[0].Category != classify.RedLineProduction {
		t.Fatalf("red lines = %v, want production", res.RedLines)
	}
	if len(res.Mitigations) == 0 {
		t.Fatal("expected mitigations")
	}

	got := testAssessor().Triggers(res)
	if len(got) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(got))
	}
	if got[0].Severity != trigger.SeverityHigh {
		t.Fatalf("severity = %s, want high", got[0].Severity)
	}
	if got[0].Confidence != 0.9 {
		t.Fatalf("confidence = %.2f, want 0.9", got[0].Confidence)
	}
}

func TestDestructiveRedLineIsCritical(t *testing.T) {
	res := testAssessor().Assess("drop table users in the reporting database")
	got := testAssessor().Triggers(res)
	var found bool
	for _, tr := range got {
		if tr.Severity == trigger.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("destructive red line must be critical, got %v", got)
	}
}

func TestDisproportionateWithoutRedLines(t *testing.T) {
	// Scale cues without any red-line phrase: entire + overhaul + distributed
	// + automation saturate the score past the threshold.
	res := testAssessor().Assess("overhaul the entire distributed cluster pipeline and automate everything in one batch")
	if len(res.RedLines) != 0 {
		t.Fatalf("red lines = %v, want none", res.RedLines)
	}
	if !res.Disproportionate {
		t.Fatalf("score %.4f should exceed the threshold", res.Score)
	}
	got := testAssessor().Triggers(res)
	if len(got) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(got))
	}
	if got[0].Severity != trigger.SeverityMedium {
		t.Fatalf("bare score breach severity = %s, want medium", got[0].Severity)
	}
	if got[0].Confidence != 0.7 {
		t.Fatalf("confidence = %.2f, want 0.7", got[0].Confidence)
	}
}

func TestBucketRiskEdges(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.0, 0.25},
		{0.24, 0.25},
		{0.25, 0.5},
		{0.5, 0.75},
		{0.74, 0.75},
		{0.75, 1.0},
		{1.0, 1.0},
	}
	for _, tc := range cases {
		if got := bucketRisk(tc.in); got != tc.want {
			t.Fatalf("bucketRisk(%.2f) = %.2f, want %.2f", tc.in, got, tc.want)
		}
	}
}

func TestMitigationsDeduped(t *testing.T) {
	res := testAssessor().Assess("wipe and destroy all users data in production")
	seen := map[string]bool{}
	for _, m := range res.Mitigations {
		if seen[m] {
			t.Fatalf("duplicate mitigation %q", m)
		}
		seen[m] = true
	}
	if len(res.Mitigations) == 0 {
		t.Fatal("expected mitigations for a red-lined action")
	}
}
