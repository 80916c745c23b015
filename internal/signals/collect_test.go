package signals

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/emotion"
	"github.com/kestrelworks/restraint/internal/proportion"
	"github.com/kestrelworks/restraint/internal/trigger"
)

func testCollector(t *testing.T) (*Collector, *capability.Profile) {
	t.Helper()
	dir := t.TempDir()
	profile, err := capability.LoadProfile(filepath.Join(dir, "profile.jsonl"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	logger := zap.NewNop()
	c := NewCollector(
		emotion.NewAnalyzer(filepath.Join(dir, "baseline.json"), logger),
		capability.NewAssessor(profile, nil, logger),
		proportion.NewAssessor(logger),
	)
	return c, profile
}

func TestCollectCalmAction(t *testing.T) {
	c, _ := testCollector(t)
	got := c.Collect(context.Background(), "Format text with proper indentation", "", "Can you help clean up this text formatting?")
	if len(got) != 0 {
		t.Fatalf("expected no triggers, got %v", got)
	}
}

func TestCollectHotDeployMergesAllThree(t *testing.T) {
	c, profile := testCollector(t)
	if err := profile.SetProficiency("infrastructure", "deployment", 8, ""); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}

	action := "Deploy distributed microservices architecture to production"
	raw := "I'm fed up with this broken system! Deploy everything to production RIGHT NOW!"
	got := c.Collect(context.Background(), action, "", raw)

	if len(got) != 3 {
		t.Fatalf("expected 3 triggers, got %d: %v", len(got), got)
	}
	// Deterministic merge order regardless of goroutine completion.
	wantKinds := []trigger.Kind{
		trigger.KindEmotionalSpike,
		trigger.KindCapabilityExceeded,
		trigger.KindDisproportionateScope,
	}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Fatalf("trigger[%d].Kind = %s, want %s", i, got[i].Kind, k)
		}
	}

	eval := trigger.Aggregate(got)
	if !eval.ShouldPause || !eval.AuditRequired {
		t.Fatalf("eval = %+v, want pause and audit", eval)
	}
	if eval.MaxSeverity() != trigger.SeverityCritical {
		t.Fatalf("max severity = %s, want critical", eval.MaxSeverity())
	}
}

func TestCollectOrderIsStableAcrossRuns(t *testing.T) {
	c, _ := testCollector(t)
	action := "deploy everything to production right now"
	var first string
	for i := 0; i < 10; i++ {
		got := c.Collect(context.Background(), action, "", action)
		eval := trigger.Aggregate(got)
		if i == 0 {
			first = eval.Flags()
			continue
		}
		if eval.Flags() != first {
			t.Fatalf("run %d: flags %q differ from first run %q", i, eval.Flags(), first)
		}
	}
}

func TestProportionalityReassessment(t *testing.T) {
	c, _ := testCollector(t)
	res := c.Proportionality("drop table users in production")
	if len(res.RedLines) != 2 {
		t.Fatalf("red lines = %v, want destructive and production", res.RedLines)
	}
}
