package gate

// #region imports
import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/auditlog"
	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/cognitive"
	"github.com/kestrelworks/restraint/internal/reflect"
	"github.com/kestrelworks/restraint/internal/signals"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region errors

var (
	// ErrNotPaused means reflection was requested for an evaluation that
	// did not pause, or for an unknown session.
	ErrNotPaused = errors.New("gate: no paused evaluation for session")
)

// cooldownWindow is the fixed pause after a high-intensity decision.
const cooldownWindow = 5 * time.Minute

// #endregion errors

// #region gate

// Gate is the single choke point between a proposed action and its
// execution. Evaluations are serialized; there is no path to a decision
// that skips the reflection protocol.
type Gate struct {
	mu        sync.Mutex
	state     State
	collector *signals.Collector
	engine    *reflect.Engine
	log       *auditlog.Store
	signature *cognitive.Signature

	overridePhrase string
	cooldownUntil  time.Time
	logger         *zap.Logger
	now            func() time.Time
}

// New wires the gate over its collaborators.
func New(collector *signals.Collector, engine *reflect.Engine, log *auditlog.Store, signature *cognitive.Signature, overridePhrase string, logger *zap.Logger) *Gate {
	return &Gate{
		state:          StateIdle,
		collector:      collector,
		engine:         engine,
		log:            log,
		signature:      signature,
		overridePhrase: overridePhrase,
		logger:         logger,
		now:            time.Now,
	}
}

// State reports the gate's current lifecycle position.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CooldownRemaining reports how long the active cooldown has left, zero if
// none.
func (g *Gate) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rem := g.cooldownUntil.Sub(g.now()); rem > 0 {
		return rem
	}
	return 0
}

// #endregion gate

// #region evaluate

// Evaluate runs one action through the collectors and either clears it or
// freezes it behind a reflection session. During an active cooldown the
// collectors are skipped entirely and every action pauses.
func (g *Gate) Evaluate(ctx context.Context, action, actionContext, rawInput string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = StateEvaluating
	now := g.now()

	var eval trigger.Evaluation
	if now.Before(g.cooldownUntil) {
		eval = trigger.Aggregate([]trigger.Trigger{{
			Kind:       trigger.KindCooldownActive,
			Severity:   trigger.SeverityHigh,
			Confidence: 1.0,
			Evidence:   fmt.Sprintf("cooldown active until %s", g.cooldownUntil.Format(time.RFC3339)),
		}})
	} else {
		eval = trigger.Aggregate(g.collector.Collect(ctx, action, actionContext, rawInput))
	}

	entry, err := g.log.AppendEvaluation(action, actionContext, rawInput, eval)
	if err != nil {
		g.state = StateIdle
		return Result{}, fmt.Errorf("log evaluation: %w", err)
	}

	res := Result{
		ActionID: entry.ActionID,
		Flags:    eval.Flags(),
		EntryID:  entry.ID,
	}
	if !eval.ShouldPause {
		g.state = StateProceeding
		g.logger.Info("action cleared", zap.String("action_id", res.ActionID))
		g.state = StateIdle
		return res, nil
	}

	sess, err := g.engine.Start(eval, entry.ActionID, action, actionContext)
	if err != nil {
		g.state = StateIdle
		return Result{}, fmt.Errorf("open reflection: %w", err)
	}
	res.Paused = true
	res.SessionID = sess.ID
	g.state = StatePaused
	g.logger.Info("action paused",
		zap.String("action_id", res.ActionID),
		zap.String("session", sess.ID),
		zap.String("flags", res.Flags))
	return res, nil
}

// #endregion evaluate

// #region reflection

// ConductReflection drives a paused session to its decision, records the
// decision in the audit log and the cognitive signature, and arms the
// cooldown when a high or critical emotional spike was not overridden.
// This is the only path from Paused to Decided.
func (g *Gate) ConductReflection(sessionID string, prompter reflect.Prompter) (reflect.Decision, error) {
	sess, err := g.engine.Resume(sessionID)
	if err != nil {
		if errors.Is(err, reflect.ErrSessionNotFound) {
			return reflect.Decision{}, ErrNotPaused
		}
		return reflect.Decision{}, err
	}
	// A session terminates in exactly one decision. Replaying a completed
	// one must not append another log entry or re-arm the cooldown.
	if sess.Completed() {
		return *sess.Decision, reflect.ErrSessionComplete
	}
	if !sess.Eval.ShouldPause {
		return reflect.Decision{}, ErrNotPaused
	}

	g.setState(StateAuditInProgress)
	dec, err := g.engine.Drive(sess, prompter)
	if err != nil {
		g.setState(StatePaused)
		return reflect.Decision{}, err
	}
	g.setState(StateDecided)

	if _, err := g.log.AppendDecision(sess.ActionID, sess.Eval, auditlog.DecisionRecord{
		Action:        string(dec.Action),
		RationaleHash: dec.RationaleHash,
		ModifiedScope: dec.ModifiedScope,
		DeferUntil:    dec.DeferUntil,
		OverrideUsed:  dec.OverrideUsed,
	}); err != nil {
		return dec, fmt.Errorf("log decision: %w", err)
	}
	g.recordPattern(sess, dec)

	g.mu.Lock()
	if sess.Eval.HasKindAtLeast(trigger.KindEmotionalSpike, trigger.SeverityHigh) && !dec.OverrideUsed {
		g.cooldownUntil = g.now().Add(cooldownWindow)
		g.state = StateCooldown
		g.logger.Info("cooldown armed", zap.Time("until", g.cooldownUntil))
	} else {
		g.state = StateIdle
	}
	g.mu.Unlock()
	return dec, nil
}

// recordPattern feeds the decision into the learning loop. Failures degrade
// to a log line; learning never blocks a decision.
func (g *Gate) recordPattern(sess *reflect.Session, dec reflect.Decision) {
	domain := classify.DomainOperations
	skill := ""
	if reqs := classify.Requirements(sess.Action); len(reqs) > 0 {
		domain = reqs[0].Domain
		skill = reqs[0].Skill
	}
	err := g.signature.Record(cognitive.Pattern{
		Domain:     domain,
		Skill:      skill,
		Context:    sess.Context,
		Input:      sess.Action,
		Response:   string(dec.Action),
		Confidence: 0.5,
	})
	if err != nil {
		g.logger.Warn("pattern record failed", zap.Error(err))
	}
}

// ReportOutcome feeds an executed action's result back into the learning
// loop: the newest unresolved decision pattern for the action is stamped,
// and profile confidence shifts for every classified requirement.
func (g *Gate) ReportOutcome(action string, success bool) error {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	if err := g.signature.MarkOutcome(action, outcome); err != nil {
		return fmt.Errorf("mark outcome: %w", err)
	}
	for _, req := range classify.Requirements(action) {
		if err := g.signature.ApplyOutcome(req.Domain, req.Skill, success); err != nil {
			return fmt.Errorf("apply outcome: %w", err)
		}
	}
	g.logger.Info("outcome reported",
		zap.String("action", action), zap.String("outcome", outcome))
	return nil
}

// #endregion reflection

// #region override

// CheckEmergencyOverride clears an active cooldown when the passphrase
// matches. Every use leaves a log entry; failures are not logged as
// denials since the cooldown stays armed.
func (g *Gate) CheckEmergencyOverride(phrase string) bool {
	if g.overridePhrase == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(phrase), []byte(g.overridePhrase)) != 1 {
		return false
	}
	g.mu.Lock()
	g.cooldownUntil = time.Time{}
	if g.state == StateCooldown {
		g.state = StateIdle
	}
	g.mu.Unlock()
	if _, err := g.log.AppendEvent("cooldown_override", "emergency override passphrase accepted"); err != nil {
		g.logger.Warn("override event log failed", zap.Error(err))
	}
	return true
}

// #endregion override

// #region activity

// RecentActivity surfaces the newest audit log entries, subject to the
// log's own authorization rules.
func (g *Gate) RecentActivity(limit int) ([]auditlog.LogEntry, error) {
	return g.log.Recent(limit)
}

// AwaitingSessions lists reflection sessions still waiting on the operator.
func (g *Gate) AwaitingSessions() ([]string, error) {
	return g.engine.Awaiting()
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// #endregion activity
