package auditlog

import "time"

// #region level-retention

// Level is the sliding-scale detail of a stored entry.
type Level string

const (
	LevelSummary Level = "summary"
	LevelFull    Level = "full"
)

// Retention classifies how long an entry must be kept.
type Retention string

const (
	RetentionStandard  Retention = "standard"
	RetentionExtended  Retention = "extended"
	RetentionPermanent Retention = "permanent"
)

// #endregion level-retention

// #region entries

// LogEntry is the decrypted summary view of one stored evaluation or
// decision. The plaintext exists only transiently in memory.
type LogEntry struct {
	ID             string
	CreatedAt      time.Time
	Level          Level
	Retention      Retention
	ActionID       string
	SignedLogID    string
	TriggerFlags   string
	DecisionAction string
	RationaleHash  string
}

// FullLogEntry extends LogEntry with the raw detail kept for promoted
// entries.
type FullLogEntry struct {
	LogEntry
	ActionDescription string
	Context           string
	RawInput          string
	AuditTrail        []string
}

// payload is the AEAD-sealed portion of a row. Plaintext columns carry only
// correlation ids and chain metadata.
type payload struct {
	TriggerFlags      string   `json:"trigger_flags"`
	DecisionAction    string   `json:"decision_action,omitempty"`
	RationaleHash     string   `json:"rationale_hash,omitempty"`
	ActionDescription string   `json:"action_description,omitempty"`
	Context           string   `json:"context,omitempty"`
	RawInput          string   `json:"raw_input,omitempty"`
	AuditTrail        []string `json:"audit_trail,omitempty"`
}

// #endregion entries

// #region decision-record

// DecisionRecord is the audit-facing shape of a reflection decision.
type DecisionRecord struct {
	Action        string // authorize | modify_scope | defer
	RationaleHash string
	ModifiedScope string
	DeferUntil    *time.Time
	OverrideUsed  bool
}

// #endregion decision-record

// #region device-registry

// DeviceKey is one row of the device-key registry: a per-device wrapped
// copy of the log master key.
type DeviceKey struct {
	DeviceID   string
	WrapMethod string
	Authorized bool
	CreatedAt  time.Time
}

// #endregion device-registry
