package reflect

// #region imports
import (
	"fmt"
	"strings"

	"github.com/kestrelworks/restraint/internal/cognitive"
	"github.com/kestrelworks/restraint/internal/proportion"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region trigger-presentation

// triggerRationale synthesizes a natural-language rationale per trigger kind.
func triggerRationale(t trigger.Trigger) string {
	switch t.Kind {
	case trigger.KindEmotionalSpike:
		return "Your language shows elevated emotional pressure. Decisions made in this state tend to trade long-term cost for short-term relief."
	case trigger.KindCapabilityExceeded:
		return "This action asks for more than your recorded proficiency. The gap is where unplanned failures live."
	case trigger.KindUncertaintyDetected:
		return "There is no record of this skill. Acting on unstated ability means acting on hope."
	case trigger.KindDisproportionateScope:
		return "The scope of this action is out of proportion to a single unreviewed decision."
	case trigger.KindCooldownActive:
		return "A cooldown from a recent high-intensity evaluation is still active."
	default:
		return "An unclassified risk signal was raised."
	}
}

func presentTriggers(eval trigger.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This action was paused by %d trigger(s):\n", len(eval.Triggers))
	for i, t := range eval.Triggers {
		fmt.Fprintf(&b, "%d. [%s/%s] confidence %.2f\n   %s\n   %s\n",
			i+1, t.Kind, t.Severity, t.Confidence, t.Evidence, triggerRationale(t))
	}
	return b.String()
}

// #endregion trigger-presentation

// #region tradeoffs

// Tradeoffs is the step-2 analysis, recomputed from the triggers and the
// action text rather than carried over from the evaluation.
type Tradeoffs struct {
	FeasibilityRisk float64
	PayoffRisk      float64
	EffortRisk      float64
	ImpactRadius    float64
	RedLines        []string
	Mitigations     []string
}

func computeTradeoffs(eval trigger.Evaluation, prop proportion.Result) Tradeoffs {
	t := Tradeoffs{
		PayoffRisk:   prop.Score,
		EffortRisk:   (prop.Factors.TimeEstimate + prop.Factors.Complexity) / 2,
		ImpactRadius: prop.Factors.ImpactRadius,
		Mitigations:  prop.Mitigations,
	}
	for _, rl := range prop.RedLines {
		t.RedLines = append(t.RedLines, string(rl.Category))
	}

	// Feasibility follows the worst capability signal.
	for _, tr := range eval.Triggers {
		if tr.Kind != trigger.KindCapabilityExceeded && tr.Kind != trigger.KindUncertaintyDetected {
			continue
		}
		risk := 0.25 * float64(tr.Severity.Rank()+1)
		if risk > t.FeasibilityRisk {
			t.FeasibilityRisk = risk
		}
	}
	return t
}

func presentTradeoffs(t Tradeoffs) string {
	var b strings.Builder
	b.WriteString("Trade-off analysis:\n")
	fmt.Fprintf(&b, "  feasibility risk: %.2f\n", t.FeasibilityRisk)
	fmt.Fprintf(&b, "  payoff risk:      %.2f\n", t.PayoffRisk)
	fmt.Fprintf(&b, "  effort risk:      %.2f\n", t.EffortRisk)
	fmt.Fprintf(&b, "  impact radius:    %.2f\n", t.ImpactRadius)
	if len(t.RedLines) > 0 {
		fmt.Fprintf(&b, "  red lines:        %s\n", strings.Join(t.RedLines, ", "))
	}
	if len(t.Mitigations) > 0 {
		b.WriteString("  suggested mitigations:\n")
		for _, m := range t.Mitigations {
			fmt.Fprintf(&b, "    - %s\n", m)
		}
	}
	return b.String()
}

// #endregion tradeoffs

// #region history

func presentHistory(episodes []cognitive.Episode, usual cognitive.Archetype, haveUsual bool) string {
	var b strings.Builder
	if len(episodes) == 0 {
		b.WriteString("No similar past episodes were found.\n")
	} else {
		b.WriteString("Similar past episodes:\n")
		for i, ep := range episodes {
			outcome := ep.Outcome
			if outcome == "" {
				outcome = "outcome unrecorded"
			}
			fmt.Fprintf(&b, "%d. %s (%s)\n   you chose: %s → %s\n",
				i+1, ep.Input, ep.CreatedAt.Format("2006-01-02"), ep.Response, outcome)
		}
	}
	if haveUsual {
		fmt.Fprintf(&b, "Your usual %s response: %s (%d decisions, %.0f%% success)\n",
			usual.Domain, usual.ResponsePrefix, usual.Frequency, usual.SuccessRate*100)
	}
	return b.String()
}

// #endregion history

// #region questions

const (
	intentQuestion    = "What's your intent, and what cost are you accepting?"
	rationaleQuestion = "Type your rationale for proceeding (at least 10 characters):"
	choiceQuestion    = "Choose exactly one: [authorize] [modify] [defer]"
	scopeQuestion     = "Describe the reduced scope:"
	deferQuestion     = "Defer for how long? (\"N hours\", \"N minutes\", \"tomorrow\"; default 1 hour)"
	overrideQuestion  = "A high-intensity emotional spike was detected. Enter the override passphrase to skip the cooldown, or press enter to accept it:"
)

// #endregion questions
