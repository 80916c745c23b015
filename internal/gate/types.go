package gate

// #region state
// State names the gate's position in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateEvaluating      State = "evaluating"
	StateProceeding      State = "proceeding"
	StatePaused          State = "paused"
	StateAuditInProgress State = "audit_in_progress"
	StateDecided         State = "decided"
	StateCooldown        State = "cooldown"
)

// #endregion state

// #region result
// Result is the outcome of one gate evaluation. When Paused is set the
// action is frozen behind SessionID until a reflection session decides it.
type Result struct {
	ActionID  string
	Paused    bool
	SessionID string
	Flags     string
	EntryID   string // audit log entry recording the evaluation
}

// #endregion result
