package auditlog

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/cipher"
	"github.com/kestrelworks/restraint/internal/trigger"
)

func testOptions() Options {
	return Options{
		DeviceID:       "test-device",
		Passphrase:     "log passphrase",
		OperatorSecret: "operator-secret",
		Logger:         zap.NewNop(),
	}
}

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restraint.db")
	s, err := Open(path, testOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func unlockStore(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Unlock("operator-secret", Attestation(testOptions())); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func calmEval() trigger.Evaluation {
	return trigger.Aggregate(nil)
}

func criticalEval() trigger.Evaluation {
	return trigger.Aggregate([]trigger.Trigger{
		{Kind: trigger.KindEmotionalSpike, Severity: trigger.SeverityCritical, Confidence: 0.95, Evidence: "score 0.78 over baseline 0.20"},
		{Kind: trigger.KindCapabilityExceeded, Severity: trigger.SeverityHigh, Confidence: 0.65, Evidence: "gap 2"},
		{Kind: trigger.KindDisproportionateScope, Severity: trigger.SeverityHigh, Confidence: 0.9, Evidence: "red line production"},
	})
}

// #region scale

func TestScaleCalmEvaluation(t *testing.T) {
	level, retention := scale(calmEval())
	if level != LevelSummary {
		t.Fatalf("level = %s, want summary", level)
	}
	if retention != RetentionStandard {
		t.Fatalf("retention = %s, want standard", retention)
	}
}

func TestScaleSingleMediumTrigger(t *testing.T) {
	eval := trigger.Aggregate([]trigger.Trigger{
		{Kind: trigger.KindDisproportionateScope, Severity: trigger.SeverityMedium},
	})
	level, retention := scale(eval)
	if level != LevelSummary {
		t.Fatalf("level = %s, want summary", level)
	}
	if retention != RetentionExtended {
		t.Fatalf("retention = %s, want extended", retention)
	}
}

func TestScaleCriticalEvaluation(t *testing.T) {
	level, retention := scale(criticalEval())
	if level != LevelFull {
		t.Fatalf("level = %s, want full", level)
	}
	if retention != RetentionPermanent {
		t.Fatalf("retention = %s, want permanent", retention)
	}
}

func TestScaleThreeLowTriggersPromoteLevel(t *testing.T) {
	eval := trigger.Aggregate([]trigger.Trigger{
		{Kind: trigger.KindEmotionalSpike, Severity: trigger.SeverityLow},
		{Kind: trigger.KindUncertaintyDetected, Severity: trigger.SeverityMedium},
		{Kind: trigger.KindDisproportionateScope, Severity: trigger.SeverityMedium},
	})
	level, retention := scale(eval)
	if level != LevelFull {
		t.Fatalf("three triggers: level = %s, want full", level)
	}
	if retention != RetentionExtended {
		t.Fatalf("retention = %s, want extended", retention)
	}
}

// #endregion scale

// #region append-read

func TestAppendEvaluationAndReadBack(t *testing.T) {
	s, _ := tempStore(t)

	entry, err := s.AppendEvaluation(
		"Deploy distributed microservices architecture to production",
		"release push",
		"I'm fed up with this broken system! Deploy everything to production RIGHT NOW!",
		criticalEval(),
	)
	if err != nil {
		t.Fatalf("AppendEvaluation: %v", err)
	}
	if entry.Level != LevelFull || entry.Retention != RetentionPermanent {
		t.Fatalf("entry = %+v, want full/permanent", entry)
	}
	if entry.ActionID == "" || entry.SignedLogID == "" {
		t.Fatal("correlation ids must be set")
	}

	unlockStore(t, s)
	full, err := s.Entry(entry.ID)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if full.ActionDescription != "Deploy distributed microservices architecture to production" {
		t.Fatalf("action = %q", full.ActionDescription)
	}
	if full.RawInput == "" || full.Context != "release push" {
		t.Fatalf("full detail missing: %+v", full)
	}
	if len(full.AuditTrail) != 3 {
		t.Fatalf("audit trail = %v, want one line per trigger", full.AuditTrail)
	}
}

func TestSummaryEntryCarriesNoRawDetail(t *testing.T) {
	s, _ := tempStore(t)
	eval := trigger.Aggregate([]trigger.Trigger{
		{Kind: trigger.KindDisproportionateScope, Severity: trigger.SeverityMedium},
	})
	entry, err := s.AppendEvaluation("reindex the cache", "", "please reindex", eval)
	if err != nil {
		t.Fatalf("AppendEvaluation: %v", err)
	}

	unlockStore(t, s)
	full, err := s.Entry(entry.ID)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if full.ActionDescription != "" || full.RawInput != "" || full.AuditTrail != nil {
		t.Fatalf("summary entry must not keep raw detail: %+v", full)
	}
	if full.TriggerFlags != "disproportionate_scope:medium" {
		t.Fatalf("flags = %q", full.TriggerFlags)
	}
}

func TestAppendDecisionCorrelation(t *testing.T) {
	s, _ := tempStore(t)
	eval := criticalEval()

	evalEntry, err := s.AppendEvaluation("deploy to production", "", "NOW!", eval)
	if err != nil {
		t.Fatalf("AppendEvaluation: %v", err)
	}
	decEntry, err := s.AppendDecision(evalEntry.ActionID, eval, DecisionRecord{
		Action:        "modify_scope",
		RationaleHash: "abc123",
		ModifiedScope: "staging only",
	})
	if err != nil {
		t.Fatalf("AppendDecision: %v", err)
	}
	if decEntry.ActionID != evalEntry.ActionID {
		t.Fatal("decision must correlate through the same action id")
	}
	if decEntry.DecisionAction != "modify_scope" {
		t.Fatalf("decision action = %q", decEntry.DecisionAction)
	}

	unlockStore(t, s)
	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// newest first
	if entries[0].ID != decEntry.ID || entries[1].ID != evalEntry.ID {
		t.Fatal("Recent must return newest first")
	}
}

// #endregion append-read

// #region chain

func TestVerifyChain(t *testing.T) {
	s, _ := tempStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.AppendEvent("test_event", "entry"); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	count, err := s.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestVerifyChainDetectsMutation(t *testing.T) {
	s, _ := tempStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		e, err := s.AppendEvent("test_event", "entry")
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		ids = append(ids, e.ID)
	}

	// Rewrite the second entry's id: every link from there on breaks.
	if _, err := s.db.Exec(`UPDATE log_entries SET id = ? WHERE id = ?`, "forged", ids[1]); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	count, err := s.VerifyChain()
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
	// the prefix before the mutation still verifies
	if count != 1 {
		t.Fatalf("verified prefix = %d, want 1", count)
	}
}

func TestPayloadTamperFailsDecryption(t *testing.T) {
	s, _ := tempStore(t)
	e, err := s.AppendEvent("test_event", "entry")
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE log_entries SET payload = ? WHERE id = ?`, []byte("garbage"), e.ID); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	unlockStore(t, s)
	if _, err := s.Entry(e.ID); err == nil {
		t.Fatal("tampered payload must fail to decrypt")
	}
}

// #endregion chain

// #region auth-integration

func TestReadRequiresUnlockAndLogsDenial(t *testing.T) {
	s, _ := tempStore(t)
	if _, err := s.Recent(5); !errors.Is(err, ErrAuthDenied) {
		t.Fatalf("err = %v, want ErrAuthDenied", err)
	}

	unlockStore(t, s)
	entries, err := s.Recent(5)
	if err != nil {
		t.Fatalf("Recent after unlock: %v", err)
	}
	if len(entries) != 1 || entries[0].TriggerFlags != "auth_denied" {
		t.Fatalf("denied read must be logged, got %+v", entries)
	}
}

func TestEmergencyUnlockIsSingleUseAndAudited(t *testing.T) {
	s, _ := tempStore(t)
	if _, err := s.AppendEvent("test_event", "entry"); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := s.EmergencyUnlock(trigger.SeverityLow); !errors.Is(err, ErrAuthDenied) {
		t.Fatalf("low severity: err = %v, want ErrAuthDenied", err)
	}
	if err := s.EmergencyUnlock(trigger.SeverityHigh); err != nil {
		t.Fatalf("EmergencyUnlock: %v", err)
	}

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var audited bool
	for _, e := range entries {
		if e.TriggerFlags == "emergency_log_access" {
			audited = true
		}
	}
	if !audited {
		t.Fatal("emergency access must itself be logged")
	}

	// the single use is consumed and the time-lock holds
	if _, err := s.Recent(10); !errors.Is(err, ErrLocked) {
		t.Fatalf("second read: err = %v, want ErrLocked", err)
	}
}

// #endregion auth-integration

// #region devices

func TestReopenWithWrongPassphrase(t *testing.T) {
	s, path := tempStore(t)
	s.Close()

	opts := testOptions()
	opts.Passphrase = "wrong passphrase"
	if _, err := Open(path, opts); err == nil {
		t.Fatal("wrong passphrase must fail to open")
	}
}

func TestAuthorizeAndRevokeDevice(t *testing.T) {
	s, path := tempStore(t)
	if _, err := s.AppendEvent("test_event", "before second device"); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	secret := []byte("second device secret")
	if err := s.AuthorizeDevice("phone-1", cipher.WrapDevice, secret, ""); err != nil {
		t.Fatalf("AuthorizeDevice: %v", err)
	}
	s.Close()

	opts := Options{
		DeviceID:       "phone-1",
		DeviceSecret:   secret,
		OperatorSecret: "operator-secret",
		Logger:         zap.NewNop(),
	}
	second, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open as second device: %v", err)
	}
	if err := second.Unlock("operator-secret", Attestation(opts)); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := second.Recent(5); err != nil {
		t.Fatalf("second device read: %v", err)
	}
	if err := second.RevokeDevice("phone-1"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}

	devices, err := second.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	second.Close()

	if _, err := Open(path, opts); !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("revoked device open: err = %v, want ErrDeviceNotAuthorized", err)
	}
}

func TestUnknownDeviceDenied(t *testing.T) {
	s, path := tempStore(t)
	s.Close()

	opts := testOptions()
	opts.DeviceID = "stranger"
	if _, err := Open(path, opts); !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("err = %v, want ErrDeviceNotAuthorized", err)
	}
}

// #endregion devices
