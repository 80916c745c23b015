package proportion

// #region imports
import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region weights

// Factor weights for the combined proportionality score. Impact radius
// dominates: who is affected matters more than how long it takes.
const (
	weightImpact       = 0.30
	weightComplexity   = 0.25
	weightTime         = 0.15
	weightDependencies = 0.15
	weightAutomation   = 0.15
)

// disproportionateThreshold marks the score above which an action's scope
// is out of proportion to a single unreviewed decision.
const disproportionateThreshold = 0.7

// #endregion weights

// #region result

// Result is the full proportionality verdict for one action.
type Result struct {
	Score            float64
	Factors          classify.ScopeFactors
	Disproportionate bool
	RedLines         []classify.RedLine
	Mitigations      []string
}

// #endregion result

// #region assessor

// Assessor scores action scope against fixed thresholds and flags
// categorical red lines independent of the score.
type Assessor struct {
	logger *zap.Logger
}

// NewAssessor creates a proportionality assessor.
func NewAssessor(logger *zap.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// Assess derives the five scope factors, buckets each into a risk value,
// and combines them by weight.
func (a *Assessor) Assess(action string) Result {
	factors := classify.Scope(action)

	score := weightImpact*bucketRisk(factors.ImpactRadius) +
		weightComplexity*bucketRisk(factors.Complexity) +
		weightTime*bucketRisk(factors.TimeEstimate) +
		weightDependencies*bucketRisk(factors.Dependencies) +
		weightAutomation*bucketRisk(factors.AutomationRatio)

	res := Result{
		Score:            score,
		Factors:          factors,
		Disproportionate: score > disproportionateThreshold,
		RedLines:         classify.RedLines(action),
	}
	if res.Disproportionate || len(res.RedLines) > 0 {
		res.Mitigations = mitigations(res)
	}

	a.logger.Debug("proportionality assessment",
		zap.Float64("score", score),
		zap.Bool("disproportionate", res.Disproportionate),
		zap.Int("red_lines", len(res.RedLines)))
	return res
}

// Triggers converts a result into DisproportionateScope triggers. A red
// line alone is High (Critical when destructive); a bare score breach is
// Medium.
func (a *Assessor) Triggers(res Result) []trigger.Trigger {
	var out []trigger.Trigger

	for _, rl := range res.RedLines {
		sev := trigger.SeverityHigh
		if rl.Category == classify.RedLineDestructive {
			sev = trigger.SeverityCritical
		}
		out = append(out, trigger.Trigger{
			Kind:        trigger.KindDisproportionateScope,
			Severity:    sev,
			Confidence:  0.9,
			Evidence:    fmt.Sprintf("red line %s (matched %q)", rl.Category, rl.Matched),
			ContextRefs: res.Mitigations,
		})
	}

	if res.Disproportionate && len(res.RedLines) == 0 {
		out = append(out, trigger.Trigger{
			Kind:       trigger.KindDisproportionateScope,
			Severity:   trigger.SeverityMedium,
			Confidence: 0.7,
			Evidence: fmt.Sprintf("proportionality score %.2f exceeds %.2f (impact=%.2f complexity=%.2f)",
				res.Score, disproportionateThreshold, res.Factors.ImpactRadius, res.Factors.Complexity),
			ContextRefs: res.Mitigations,
		})
	}
	return out
}

// #endregion assessor

// #region helpers

// bucketRisk converts a normalized factor into one of four fixed risk
// buckets. Bucket edges are fixed thresholds, not tunables.
func bucketRisk(v float64) float64 {
	switch {
	case v >= 0.75:
		return 1.0
	case v >= 0.5:
		return 0.75
	case v >= 0.25:
		return 0.5
	default:
		return 0.25
	}
}

// mitigations proposes concrete scope reductions for a disproportionate
// or red-lined action.
func mitigations(res Result) []string {
	var out []string
	if res.Factors.ImpactRadius >= 0.75 {
		out = append(out, "stage the change in a non-production environment first")
	}
	if res.Factors.Complexity >= 0.5 {
		out = append(out, "split the work into independently reviewable pieces")
	}
	if res.Factors.AutomationRatio >= 0.5 {
		out = append(out, "run one manual dry-run before automating the batch")
	}
	for _, rl := range res.RedLines {
		switch rl.Category {
		case classify.RedLineDestructive:
			out = append(out, "take a verified backup and require a second sign-off before any destructive step")
		case classify.RedLineProduction:
			out = append(out, "schedule a maintenance window and prepare a rollback plan")
		case classify.RedLineSecurity:
			out = append(out, "route security/financial changes through the standing review checklist")
		}
	}
	if len(out) == 0 {
		out = append(out, "reduce the blast radius to the smallest slice that still proves the change")
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// #endregion helpers
