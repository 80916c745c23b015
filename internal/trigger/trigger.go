package trigger

import "strings"

// #region kind

// Kind enumerates risk signal categories.
type Kind string

const (
	KindEmotionalSpike        Kind = "emotional_spike"
	KindCapabilityExceeded    Kind = "capability_exceeded"
	KindDisproportionateScope Kind = "disproportionate_scope"
	KindUncertaintyDetected   Kind = "uncertainty_detected"
	// KindCooldownActive is synthetic: emitted by the gate itself while a
	// cooldown window blocks evaluation, never by a collector.
	KindCooldownActive Kind = "cooldown_active"
)

// #endregion kind

// #region severity

// Severity ranks how serious a trigger is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the numeric ordering of a severity (low=0 .. critical=3).
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// #endregion severity

// #region trigger

// Trigger is a single detected risk signal. Immutable once created.
type Trigger struct {
	Kind        Kind
	Severity    Severity
	Confidence  float64 // [0,1]
	Evidence    string
	ContextRefs []string
}

// #endregion trigger

// #region evaluation

// Evaluation is the gate's aggregate verdict over all collector triggers.
// Derived per call, not persisted directly; the audit writer consumes it.
type Evaluation struct {
	Triggers      []Trigger
	ShouldPause   bool
	AuditRequired bool
}

// MaxSeverity returns the highest severity present, or SeverityLow when
// there are no triggers.
func (e Evaluation) MaxSeverity() Severity {
	max := SeverityLow
	for _, t := range e.Triggers {
		if t.Severity.Rank() > max.Rank() {
			max = t.Severity
		}
	}
	return max
}

// HasKindAtLeast reports whether any trigger of the given kind is at or
// above the given severity.
func (e Evaluation) HasKindAtLeast(kind Kind, sev Severity) bool {
	for _, t := range e.Triggers {
		if t.Kind == kind && t.Severity.AtLeast(sev) {
			return true
		}
	}
	return false
}

// Flags renders the trigger set as a compact pipe-joined string for
// summary log entries, e.g. "emotional_spike:critical|capability_exceeded:high".
func (e Evaluation) Flags() string {
	if len(e.Triggers) == 0 {
		return ""
	}
	parts := make([]string, len(e.Triggers))
	for i, t := range e.Triggers {
		parts[i] = string(t.Kind) + ":" + string(t.Severity)
	}
	return strings.Join(parts, "|")
}

// #endregion evaluation

// #region aggregate

// Aggregate folds collector triggers into an Evaluation. Pause iff at least
// one trigger exists; audit iff any trigger is high or critical.
func Aggregate(triggers []Trigger) Evaluation {
	audit := false
	for _, t := range triggers {
		if t.Severity.AtLeast(SeverityHigh) {
			audit = true
			break
		}
	}
	return Evaluation{
		Triggers:      triggers,
		ShouldPause:   len(triggers) > 0,
		AuditRequired: audit,
	}
}

// #endregion aggregate
