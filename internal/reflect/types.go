package reflect

// #region imports
import (
	"errors"
	"time"

	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region action

// Action is one of the exactly three decision options.
type Action string

const (
	ActionAuthorize   Action = "authorize"
	ActionModifyScope Action = "modify_scope"
	ActionDefer       Action = "defer"
)

// #endregion action

// #region decision

// minRationaleLen is the one hard input-validation gate in the flow.
const minRationaleLen = 10

// Decision is the terminal output of a completed reflection session.
// Immutable once created; reachable only through a paused evaluation.
type Decision struct {
	Action        Action     `json:"action"`
	Rationale     string     `json:"rationale"`
	RationaleHash string     `json:"rationale_hash"`
	Intent        string     `json:"intent"`
	ModifiedScope string     `json:"modified_scope,omitempty"`
	DeferUntil    *time.Time `json:"defer_until,omitempty"`
	OverrideUsed  bool       `json:"override_used"`
	Timestamp     time.Time  `json:"timestamp"`
}

// #endregion decision

// #region steps

// Step names a position in the ordered protocol.
type Step string

const (
	StepTriggers  Step = "present_triggers"
	StepTradeoffs Step = "present_tradeoffs"
	StepHistory   Step = "present_history"
	StepIntent    Step = "ask_intent"
	StepRationale Step = "require_rationale"
	StepChoice    Step = "choose_action"
	StepScope     Step = "describe_scope"
	StepDefer     Step = "defer_duration"
	StepOverride  Step = "override_passphrase"
	StepDone      Step = "done"
)

// Prompt is what the driver shows the operator for the current step.
type Prompt struct {
	Step     Step
	Text     string // presentation body
	Question string // what is asked of the operator
}

// #endregion steps

// #region errors

var (
	// ErrRationaleTooShort re-prompts until at least 10 characters arrive.
	ErrRationaleTooShort = errors.New("reflect: rationale must be at least 10 characters")
	// ErrScopeRequired means modify_scope was chosen without a description.
	ErrScopeRequired = errors.New("reflect: modified scope description required")
	// ErrBadChoice means the input was none of authorize/modify/defer.
	ErrBadChoice = errors.New("reflect: choose authorize, modify, or defer")
	// ErrSessionComplete means Advance was called on a finished session.
	ErrSessionComplete = errors.New("reflect: session already complete")
	// ErrSessionNotFound means no persisted session has the given id.
	ErrSessionNotFound = errors.New("reflect: session not found")
)

// #endregion errors

// #region session

// Session is the durable state of one in-flight reflection. It is persisted
// after every step so an abandoned or deferred session survives a process
// restart without corrupting gate state.
type Session struct {
	ID       string             `json:"id"`
	ActionID string             `json:"action_id"`
	Action   string             `json:"action"`
	Context  string             `json:"context"`
	Eval     trigger.Evaluation `json:"eval"`
	Step     Step               `json:"step"`

	Intent        string     `json:"intent"`
	Rationale     string     `json:"rationale"`
	Choice        Action     `json:"choice,omitempty"`
	ModifiedScope string     `json:"modified_scope,omitempty"`
	DeferUntil    *time.Time `json:"defer_until,omitempty"`
	OverrideUsed  bool       `json:"override_used"`

	Decision *Decision `json:"decision,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the session has reached its decision.
func (s *Session) Completed() bool {
	return s.Step == StepDone && s.Decision != nil
}

// needsOverrideStep: step 7 only runs when a high or critical emotional
// spike is among the triggers.
func (s *Session) needsOverrideStep() bool {
	return s.Eval.HasKindAtLeast(trigger.KindEmotionalSpike, trigger.SeverityHigh)
}

// #endregion session
