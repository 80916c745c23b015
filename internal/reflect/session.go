package reflect

// #region imports
import (
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/cognitive"
	"github.com/kestrelworks/restraint/internal/proportion"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region schema

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS reflect_sessions (
	id         TEXT PRIMARY KEY,
	step       TEXT NOT NULL,
	completed  INTEGER NOT NULL DEFAULT 0,
	state_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// #endregion schema

// #region engine

// Engine runs the ordered reflection protocol as a suspend/resume state
// machine. Sessions persist after every step, so a caller on any
// concurrency model can drive them and a restart resumes cleanly.
type Engine struct {
	db             *sql.DB
	signature      *cognitive.Signature
	proportion     *proportion.Assessor
	overridePhrase string
	logger         *zap.Logger
	now            func() time.Time
}

// NewEngine initializes the sessions table over a shared handle.
func NewEngine(db *sql.DB, signature *cognitive.Signature, prop *proportion.Assessor, overridePhrase string, logger *zap.Logger) (*Engine, error) {
	if _, err := db.Exec(sessionsSchema); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &Engine{
		db:             db,
		signature:      signature,
		proportion:     prop,
		overridePhrase: overridePhrase,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// #endregion engine

// #region lifecycle

// Start opens a session for a paused evaluation and persists it at the
// first step. actionID ties the eventual decision back to the evaluation's
// log entry, even across a process restart.
func (e *Engine) Start(eval trigger.Evaluation, actionID, action, context string) (*Session, error) {
	now := e.now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		ActionID:  actionID,
		Action:    action,
		Context:   context,
		Eval:      eval,
		Step:      StepTriggers,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.save(sess, true); err != nil {
		return nil, err
	}
	e.logger.Info("reflection session started",
		zap.String("session", sess.ID), zap.Int("triggers", len(eval.Triggers)))
	return sess, nil
}

// Resume loads a persisted session by id.
func (e *Engine) Resume(id string) (*Session, error) {
	var stateJSON string
	err := e.db.QueryRow(`SELECT state_json FROM reflect_sessions WHERE id = ?`, id).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(stateJSON), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Awaiting lists ids of sessions still waiting on operator input.
func (e *Engine) Awaiting() ([]string, error) {
	rows, err := e.db.Query(`SELECT id FROM reflect_sessions WHERE completed = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *Engine) save(sess *Session, insert bool) error {
	sess.UpdatedAt = e.now().UTC()
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	completed := 0
	if sess.Completed() {
		completed = 1
	}
	if insert {
		_, err = e.db.Exec(
			`INSERT INTO reflect_sessions (id, step, completed, state_json, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, string(sess.Step), completed, string(state),
			sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano),
		)
	} else {
		_, err = e.db.Exec(
			`UPDATE reflect_sessions SET step = ?, completed = ?, state_json = ?, updated_at = ? WHERE id = ?`,
			string(sess.Step), completed, string(state),
			sess.UpdatedAt.Format(time.RFC3339Nano), sess.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// #endregion lifecycle

// #region prompt

// Prompt builds the presentation and question for the session's current
// step. Pure read: it does not advance the session.
func (e *Engine) Prompt(sess *Session) (Prompt, error) {
	switch sess.Step {
	case StepTriggers:
		return Prompt{Step: sess.Step, Text: presentTriggers(sess.Eval), Question: "Press enter to continue."}, nil
	case StepTradeoffs:
		prop := e.proportion.Assess(sess.Action)
		return Prompt{Step: sess.Step, Text: presentTradeoffs(computeTradeoffs(sess.Eval, prop)), Question: "Press enter to continue."}, nil
	case StepHistory:
		episodes, err := e.signature.SimilarEpisodes(sess.Action+" "+sess.Context, 2)
		if err != nil {
			// A degraded history lookup must not stall the protocol.
			e.logger.Warn("episode lookup failed", zap.Error(err))
			episodes = nil
		}
		usual, haveUsual := e.usualResponse(sess.Action)
		return Prompt{Step: sess.Step, Text: presentHistory(episodes, usual, haveUsual), Question: "Press enter to continue."}, nil
	case StepIntent:
		return Prompt{Step: sess.Step, Question: intentQuestion}, nil
	case StepRationale:
		return Prompt{Step: sess.Step, Question: rationaleQuestion}, nil
	case StepChoice:
		return Prompt{Step: sess.Step, Question: choiceQuestion}, nil
	case StepScope:
		return Prompt{Step: sess.Step, Question: scopeQuestion}, nil
	case StepDefer:
		return Prompt{Step: sess.Step, Question: deferQuestion}, nil
	case StepOverride:
		return Prompt{Step: sess.Step, Question: overrideQuestion}, nil
	case StepDone:
		return Prompt{Step: sess.Step, Text: "Session complete."}, nil
	default:
		return Prompt{}, fmt.Errorf("reflect: unknown step %q", sess.Step)
	}
}

// usualResponse asks the signature for the established archetype in the
// action's primary domain. Advisory presentation only; lookup failures
// degrade to no prediction.
func (e *Engine) usualResponse(action string) (cognitive.Archetype, bool) {
	reqs := classify.Requirements(action)
	if len(reqs) == 0 {
		return cognitive.Archetype{}, false
	}
	usual, ok, err := e.signature.PredictResponse(reqs[0].Domain)
	if err != nil {
		e.logger.Warn("archetype lookup failed", zap.Error(err))
		return cognitive.Archetype{}, false
	}
	return usual, ok
}

// #endregion prompt

// #region advance

// Advance applies operator input to the current step and persists the
// session. Validation failures (short rationale, missing scope, bad choice)
// leave the step unchanged so the driver re-prompts.
func (e *Engine) Advance(sess *Session, input string) error {
	if sess.Completed() {
		return ErrSessionComplete
	}

	switch sess.Step {
	case StepTriggers:
		sess.Step = StepTradeoffs
	case StepTradeoffs:
		sess.Step = StepHistory
	case StepHistory:
		sess.Step = StepIntent
	case StepIntent:
		// Free-text intent, captured but not validated.
		sess.Intent = strings.TrimSpace(input)
		sess.Step = StepRationale
	case StepRationale:
		rationale := strings.TrimSpace(input)
		if len(rationale) < minRationaleLen {
			return ErrRationaleTooShort
		}
		sess.Rationale = rationale
		sess.Step = StepChoice
	case StepChoice:
		choice, ok := parseChoice(input)
		if !ok {
			return ErrBadChoice
		}
		sess.Choice = choice
		switch choice {
		case ActionModifyScope:
			sess.Step = StepScope
		case ActionDefer:
			sess.Step = StepDefer
		default:
			sess.Step = e.afterChoiceStep(sess)
		}
	case StepScope:
		scope := strings.TrimSpace(input)
		if scope == "" {
			return ErrScopeRequired
		}
		sess.ModifiedScope = scope
		sess.Step = e.afterChoiceStep(sess)
	case StepDefer:
		until := ParseDeferUntil(input, e.now())
		sess.DeferUntil = &until
		sess.Step = e.afterChoiceStep(sess)
	case StepOverride:
		sess.OverrideUsed = e.checkOverride(input)
		sess.Step = StepDone
	default:
		return fmt.Errorf("reflect: cannot advance from step %q", sess.Step)
	}

	if sess.Step == StepDone && sess.Decision == nil {
		sess.Decision = e.finalize(sess)
	}
	return e.save(sess, false)
}

// afterChoiceStep routes to the override step when a high or critical
// emotional spike demands one, otherwise straight to completion.
func (e *Engine) afterChoiceStep(sess *Session) Step {
	if sess.needsOverrideStep() {
		return StepOverride
	}
	return StepDone
}

func (e *Engine) checkOverride(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" || e.overridePhrase == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(e.overridePhrase)) == 1
}

// finalize builds the immutable decision from the collected inputs.
func (e *Engine) finalize(sess *Session) *Decision {
	sum := sha256.Sum256([]byte(sess.Rationale))
	dec := &Decision{
		Action:        sess.Choice,
		Rationale:     sess.Rationale,
		RationaleHash: hex.EncodeToString(sum[:]),
		Intent:        sess.Intent,
		ModifiedScope: sess.ModifiedScope,
		DeferUntil:    sess.DeferUntil,
		OverrideUsed:  sess.OverrideUsed,
		Timestamp:     e.now().UTC(),
	}
	e.logger.Info("reflection decision reached",
		zap.String("session", sess.ID),
		zap.String("action", string(dec.Action)),
		zap.Bool("override_used", dec.OverrideUsed))
	return dec
}

// #endregion advance

// #region drive

// Prompter supplies operator input for a prompt. The CLI implements it over
// stdin; tests script it.
type Prompter func(Prompt) (string, error)

// Drive runs a session to completion, re-prompting on validation errors.
// It always terminates in exactly one well-formed decision; there is no
// default-authorize path.
func (e *Engine) Drive(sess *Session, prompter Prompter) (Decision, error) {
	for !sess.Completed() {
		p, err := e.Prompt(sess)
		if err != nil {
			return Decision{}, err
		}
		input, err := prompter(p)
		if err != nil {
			return Decision{}, fmt.Errorf("operator input: %w", err)
		}
		if err := e.Advance(sess, input); err != nil {
			switch {
			case errors.Is(err, ErrRationaleTooShort),
				errors.Is(err, ErrScopeRequired),
				errors.Is(err, ErrBadChoice):
				continue // re-prompt, step unchanged
			default:
				return Decision{}, err
			}
		}
	}
	return *sess.Decision, nil
}

// #endregion drive
