package capability

// #region imports
import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region policy

// Phase tells the assessor how to weigh missing knowledge in a domain.
// The transition from learning to fully_known is an explicit operator
// setting, never inferred.
type Phase string

const (
	PhaseLearning   Phase = "learning"
	PhaseFullyKnown Phase = "fully_known"
)

// DomainPolicy configures uncertainty handling per domain.
type DomainPolicy struct {
	Phase             Phase
	RiskTolerance     float64 // [0,1], informational
	QuestionThreshold int     // unknowns tolerated before severity escalates
}

// defaultPolicy applies to domains with no explicit configuration: still
// learning, so unknowns are treated as high severity.
var defaultPolicy = DomainPolicy{Phase: PhaseLearning, RiskTolerance: 0.3, QuestionThreshold: 1}

// #endregion policy

// #region assessor

// QueryRecorder receives one record per assessed requirement. The cognitive
// signature implements it; a nil recorder disables the trail.
type QueryRecorder interface {
	RecordQuery(domain classify.Domain, skill, input, response string, confidence float64) error
}

// Assessor compares an action's inferred skill demands against the stored
// operator capability profile. Missing data always produces a trigger:
// ask before acting, never silently pass.
type Assessor struct {
	profile  *Profile
	policies map[classify.Domain]DomainPolicy
	recorder QueryRecorder
	logger   *zap.Logger
}

// NewAssessor wires an assessor over a profile. policies may be nil.
func NewAssessor(profile *Profile, policies map[classify.Domain]DomainPolicy, logger *zap.Logger) *Assessor {
	return &Assessor{profile: profile, policies: policies, logger: logger}
}

// SetRecorder attaches the pattern trail for assessed requirements.
func (a *Assessor) SetRecorder(r QueryRecorder) {
	a.recorder = r
}

// Profile exposes the underlying profile for the learning loop.
func (a *Assessor) Profile() *Profile {
	return a.profile
}

// #endregion assessor

// #region assess

// Assess parses the action into skill requirements and flags every gap or
// unknown. An action matching no skill rule demands nothing and yields no
// triggers.
func (a *Assessor) Assess(action, context string) []trigger.Trigger {
	reqs := classify.Requirements(action)
	if len(reqs) == 0 {
		return nil
	}

	var triggers []trigger.Trigger
	for _, req := range reqs {
		rec, ok := a.profile.Lookup(req.Domain, req.Skill)
		if !ok || rec.Proficiency == 0 {
			triggers = append(triggers, a.uncertaintyTrigger(req))
			a.recordQuery(req, action, "uncertainty_detected", 0.6)
			continue
		}

		gap := req.RequiredLevel - rec.Proficiency
		if gap <= 0 {
			a.recordQuery(req, action, "sufficient", rec.Confidence)
			continue
		}
		confidence := 0.4 + 0.5*rec.Confidence
		triggers = append(triggers, trigger.Trigger{
			Kind:       trigger.KindCapabilityExceeded,
			Severity:   gapSeverity(gap),
			Confidence: confidence,
			Evidence: fmt.Sprintf("%s/%s requires level %d, profile says %d (gap %d)",
				req.Domain, req.Skill, req.RequiredLevel, rec.Proficiency, gap),
			ContextRefs: []string{req.Matched},
		})
		a.recordQuery(req, action, "capability_exceeded", confidence)
	}

	a.logger.Debug("capability assessment",
		zap.String("action", action),
		zap.Int("requirements", len(reqs)),
		zap.Int("triggers", len(triggers)))
	return triggers
}

// recordQuery persists one assessed requirement to the pattern trail. A
// failed write degrades to a log line; it never blocks the assessment.
func (a *Assessor) recordQuery(req classify.Requirement, action, response string, confidence float64) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordQuery(req.Domain, req.Skill, action, response, confidence); err != nil {
		a.logger.Warn("query record failed",
			zap.String("domain", string(req.Domain)), zap.String("skill", req.Skill),
			zap.Error(err))
	}
}

func (a *Assessor) uncertaintyTrigger(req classify.Requirement) trigger.Trigger {
	policy, ok := a.policies[req.Domain]
	if !ok {
		policy = defaultPolicy
	}
	sev := trigger.SeverityMedium
	if policy.Phase == PhaseLearning {
		sev = trigger.SeverityHigh
	}
	return trigger.Trigger{
		Kind:       trigger.KindUncertaintyDetected,
		Severity:   sev,
		Confidence: 0.6,
		Evidence: fmt.Sprintf("no recorded proficiency for %s/%s (required level %d, domain phase %s)",
			req.Domain, req.Skill, req.RequiredLevel, policy.Phase),
		ContextRefs: []string{req.Matched},
	}
}

// gapSeverity scales severity by the proficiency shortfall.
func gapSeverity(gap int) trigger.Severity {
	switch {
	case gap >= 3:
		return trigger.SeverityCritical
	case gap >= 2:
		return trigger.SeverityHigh
	default:
		return trigger.SeverityMedium
	}
}

// #endregion assess
