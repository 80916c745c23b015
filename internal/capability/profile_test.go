package capability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelworks/restraint/internal/classify"
)

func tempProfile(t *testing.T) (*Profile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	return p, path
}

func TestLoadProfileMissingFile(t *testing.T) {
	p, _ := tempProfile(t)
	if _, ok := p.Lookup(classify.DomainData, "migration"); ok {
		t.Fatal("fresh profile should know nothing")
	}
}

func TestSetProficiencyAndReload(t *testing.T) {
	p, path := tempProfile(t)
	if err := p.SetProficiency(classify.DomainInfrastructure, "deployment", 8, "five years of rollouts"); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}

	rec, ok := p.Lookup(classify.DomainInfrastructure, "deployment")
	if !ok {
		t.Fatal("skill should exist after set")
	}
	if rec.Proficiency != 8 {
		t.Fatalf("proficiency = %d, want 8", rec.Proficiency)
	}
	if rec.Confidence != 0.5 {
		t.Fatalf("initial confidence = %.2f, want 0.5", rec.Confidence)
	}
	if len(rec.Evidence) != 1 {
		t.Fatalf("evidence = %v, want the set note", rec.Evidence)
	}

	// The fold must reproduce the same state from the file alone.
	reloaded, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec2, ok := reloaded.Lookup(classify.DomainInfrastructure, "deployment")
	if !ok || rec2.Proficiency != 8 {
		t.Fatalf("reloaded record = %+v, ok=%v", rec2, ok)
	}
}

func TestSetProficiencyRange(t *testing.T) {
	p, _ := tempProfile(t)
	if err := p.SetProficiency(classify.DomainData, "migration", 0, ""); err == nil {
		t.Fatal("level 0 must be rejected")
	}
	if err := p.SetProficiency(classify.DomainData, "migration", 11, ""); err == nil {
		t.Fatal("level 11 must be rejected")
	}
}

func TestAdjustConfidenceBounds(t *testing.T) {
	p, _ := tempProfile(t)
	if err := p.SetProficiency(classify.DomainData, "migration", 5, ""); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := p.AdjustConfidence(classify.DomainData, "migration", -0.1); err != nil {
			t.Fatalf("AdjustConfidence: %v", err)
		}
	}
	rec, _ := p.Lookup(classify.DomainData, "migration")
	if rec.Confidence != 0.1 {
		t.Fatalf("confidence floor = %.2f, want 0.1", rec.Confidence)
	}

	for i := 0; i < 40; i++ {
		if err := p.AdjustConfidence(classify.DomainData, "migration", 0.05); err != nil {
			t.Fatalf("AdjustConfidence: %v", err)
		}
	}
	rec, _ = p.Lookup(classify.DomainData, "migration")
	if rec.Confidence != 1.0 {
		t.Fatalf("confidence ceiling = %.2f, want 1.0", rec.Confidence)
	}
	// Confidence moves never touch proficiency.
	if rec.Proficiency != 5 {
		t.Fatalf("proficiency = %d, want untouched 5", rec.Proficiency)
	}
}

func TestAdjustConfidenceUnknownSkillIsNoop(t *testing.T) {
	p, path := tempProfile(t)
	if err := p.AdjustConfidence(classify.DomainNetwork, "network_config", 0.05); err != nil {
		t.Fatalf("AdjustConfidence: %v", err)
	}
	if _, ok := p.Lookup(classify.DomainNetwork, "network_config"); ok {
		t.Fatal("no-op adjust must not create the skill")
	}
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		t.Fatalf("no-op adjust must not append, file has %q", data)
	}
}

func TestProfileFileIsAppendOnly(t *testing.T) {
	p, path := tempProfile(t)
	if err := p.SetProficiency(classify.DomainData, "migration", 4, ""); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := p.SetProficiency(classify.DomainData, "migration", 6, "took the advanced course"); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(second), string(first)) {
		t.Fatal("earlier events must never be rewritten")
	}
	if strings.Count(string(second), "\n") != 2 {
		t.Fatalf("expected 2 event lines, got %d", strings.Count(string(second), "\n"))
	}

	rec, _ := p.Lookup(classify.DomainData, "migration")
	if rec.Proficiency != 6 {
		t.Fatalf("latest set wins: proficiency = %d, want 6", rec.Proficiency)
	}
}

func TestLoadProfileMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	if err := os.WriteFile(path, []byte("{\"op\":\"set_proficiency\"}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("malformed profile line must be an error")
	}
}

func TestAddLimitationAndEvidence(t *testing.T) {
	p, _ := tempProfile(t)
	if err := p.SetProficiency(classify.DomainSecurity, "cryptography", 7, ""); err != nil {
		t.Fatalf("SetProficiency: %v", err)
	}
	if err := p.AddLimitation(classify.DomainSecurity, "cryptography", "no HSM experience"); err != nil {
		t.Fatalf("AddLimitation: %v", err)
	}
	if err := p.AddEvidence(classify.DomainSecurity, "cryptography", "rotated the fleet certs"); err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	rec, _ := p.Lookup(classify.DomainSecurity, "cryptography")
	if len(rec.Limitations) != 1 || rec.Limitations[0] != "no HSM experience" {
		t.Fatalf("limitations = %v", rec.Limitations)
	}
	if len(rec.Evidence) != 1 {
		t.Fatalf("evidence = %v", rec.Evidence)
	}
}
