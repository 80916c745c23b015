package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/classify"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if cfg.DeviceID != "local" || cfg.DBPath != "restraint.db" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadMalformedFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte(":: not yaml ::"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Load(path, zap.NewNop())
	if cfg.DeviceID != "local" {
		t.Fatalf("malformed config should default, got %+v", cfg)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
device_id: laptop-1
db_path: /var/lib/restraint/log.db
override_phrase: stop and think
domains:
  infrastructure:
    phase: fully_known
    risk_tolerance: 0.6
    question_threshold: 2
  security:
    phase: learning
    risk_tolerance: 1.4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RESTRAINT_DEVICE_ID", "laptop-override")

	cfg := Load(path, zap.NewNop())
	if cfg.DeviceID != "laptop-override" {
		t.Fatalf("env must win: device = %q", cfg.DeviceID)
	}
	if cfg.DBPath != "/var/lib/restraint/log.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.OverridePhrase != "stop and think" {
		t.Fatalf("override phrase = %q", cfg.OverridePhrase)
	}

	policies := cfg.Policies(zap.NewNop())
	infra, ok := policies[classify.DomainInfrastructure]
	if !ok || infra.Phase != capability.PhaseFullyKnown || infra.QuestionThreshold != 2 {
		t.Fatalf("infrastructure policy = %+v ok=%v", infra, ok)
	}
	sec := policies[classify.DomainSecurity]
	if sec.RiskTolerance != 1.0 {
		t.Fatalf("risk tolerance must clamp to 1.0, got %.2f", sec.RiskTolerance)
	}
}

func TestPoliciesSkipUnknownPhase(t *testing.T) {
	cfg := Default()
	cfg.Domains = map[string]DomainPolicy{
		"data": {Phase: "omniscient"},
	}
	if policies := cfg.Policies(zap.NewNop()); len(policies) != 0 {
		t.Fatalf("unknown phase must be skipped, got %v", policies)
	}
}

func TestValidateNeedsUnlockMaterial(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("no passphrase and no device secret must fail validation")
	}
	cfg.LogPassphrase = "something"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
