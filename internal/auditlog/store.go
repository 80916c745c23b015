package auditlog

// #region imports
import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kestrelworks/restraint/internal/cipher"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS log_entries (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	created_at    TEXT NOT NULL,
	level         TEXT NOT NULL,
	retention     TEXT NOT NULL,
	action_id     TEXT NOT NULL,
	signed_log_id TEXT NOT NULL,
	payload       BLOB NOT NULL,
	chain_hash    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device_keys (
	device_id   TEXT PRIMARY KEY,
	wrapped_key BLOB NOT NULL,
	wrap_method TEXT NOT NULL,
	wrap_salt   BLOB NOT NULL,
	authorized  INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS integrity (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	head_hash       TEXT NOT NULL,
	entry_count     INTEGER NOT NULL,
	master_key_hash TEXT NOT NULL
);
`

// #endregion schema

// #region errors

var (
	// ErrIntegrity signals a hash-chain mismatch. The log segment from the
	// broken entry onward must not be trusted; no silent repair.
	ErrIntegrity = errors.New("auditlog: hash chain integrity failure")
	// ErrDeviceNotAuthorized means this device has no authorized wrapped
	// copy of the log master key.
	ErrDeviceNotAuthorized = errors.New("auditlog: device not authorized")
)

// #endregion errors

// #region options

// Options configures Open. DeviceSecret enables hardware-style key wrapping;
// Passphrase is the fallback wrap source when no device secret exists.
type Options struct {
	DeviceID       string
	DeviceSecret   []byte
	Passphrase     string
	OperatorSecret string
	Logger         *zap.Logger
}

// #endregion options

// #region store

// Store is the append-only encrypted audit log: one SQLite file holding the
// sealed entries, the device-key registry, and the integrity block.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex // single logical writer
	masterKey []byte
	deviceID  string
	guard     *Guard
	logger    *zap.Logger
	now       func() time.Time
}

// Open opens (or provisions) the audit log at path and unwraps the master
// key for the configured device.
func Open(path string, opts Options) (*Store, error) {
	if opts.DeviceID == "" {
		return nil, errors.New("auditlog: device id required")
	}
	if len(opts.DeviceSecret) == 0 && opts.Passphrase == "" {
		return nil, errors.New("auditlog: need a device secret or a passphrase to wrap the log key")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:       db,
		deviceID: opts.DeviceID,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if err := s.loadOrProvisionKey(opts); err != nil {
		db.Close()
		return nil, err
	}

	s.guard = NewGuard(opts.OperatorSecret, attestSecret(opts))
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle so sibling stores (reflection sessions, cognitive
// patterns) share the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Guard exposes the dual-auth guard for unlock flows.
func (s *Store) Guard() *Guard {
	return s.guard
}

// Attestation computes this device's system-side attestation signature.
func Attestation(opts Options) []byte {
	return Attest(attestSecret(opts))
}

// attestSecret derives the attestation secret from whichever wrap source
// the device holds.
func attestSecret(opts Options) []byte {
	h := sha256.New()
	h.Write([]byte("restraint/attest-secret/v1"))
	if len(opts.DeviceSecret) > 0 {
		h.Write(opts.DeviceSecret)
	} else {
		h.Write([]byte(opts.Passphrase))
	}
	return h.Sum(nil)
}

// #endregion store

// #region key-provisioning

func (s *Store) loadOrProvisionKey(opts Options) error {
	var masterHash string
	err := s.db.QueryRow(`SELECT master_key_hash FROM integrity WHERE id = 1`).Scan(&masterHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.provision(opts)
	case err != nil:
		return fmt.Errorf("read integrity: %w", err)
	}

	var wrapped, salt []byte
	var method string
	var authorized int
	err = s.db.QueryRow(
		`SELECT wrapped_key, wrap_salt, wrap_method, authorized FROM device_keys WHERE device_id = ?`,
		opts.DeviceID,
	).Scan(&wrapped, &salt, &method, &authorized)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeviceNotAuthorized
	}
	if err != nil {
		return fmt.Errorf("read device key: %w", err)
	}
	if authorized == 0 {
		return ErrDeviceNotAuthorized
	}

	wrapKey, err := deriveWrapKey(cipher.WrapMethod(method), opts, salt)
	if err != nil {
		return err
	}
	master, err := cipher.UnwrapKey(wrapKey, wrapped, opts.DeviceID)
	if err != nil {
		return fmt.Errorf("unwrap master key: %w", err)
	}
	if cipher.KeyFingerprint(master) != masterHash {
		return errors.New("auditlog: unwrapped key does not match registry fingerprint")
	}
	s.masterKey = master
	return nil
}

// provision creates a fresh master key and the first registry row.
func (s *Store) provision(opts Options) error {
	master, err := cipher.NewMasterKey()
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("salt: %w", err)
	}
	method := wrapMethodFor(opts)
	wrapKey, err := deriveWrapKey(method, opts, salt)
	if err != nil {
		return err
	}
	wrapped, err := cipher.WrapKey(wrapKey, master, opts.DeviceID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`INSERT INTO device_keys (device_id, wrapped_key, wrap_method, wrap_salt, authorized, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		opts.DeviceID, wrapped, string(method), salt, now,
	); err != nil {
		return fmt.Errorf("insert device key: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO integrity (id, head_hash, entry_count, master_key_hash) VALUES (1, ?, 0, ?)`,
		genesisHash(), cipher.KeyFingerprint(master),
	); err != nil {
		return fmt.Errorf("insert integrity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.masterKey = master
	s.logger.Info("audit log provisioned",
		zap.String("device", opts.DeviceID), zap.String("wrap_method", string(method)))
	return nil
}

func wrapMethodFor(opts Options) cipher.WrapMethod {
	if len(opts.DeviceSecret) > 0 {
		return cipher.WrapDevice
	}
	return cipher.WrapPassphrase
}

func deriveWrapKey(method cipher.WrapMethod, opts Options, salt []byte) ([]byte, error) {
	switch method {
	case cipher.WrapDevice:
		if len(opts.DeviceSecret) == 0 {
			return nil, errors.New("auditlog: registry row is device-wrapped but no device secret supplied")
		}
		return cipher.DeriveDeviceWrapKey(opts.DeviceSecret, salt)
	case cipher.WrapPassphrase:
		if opts.Passphrase == "" {
			return nil, errors.New("auditlog: registry row is passphrase-wrapped but no passphrase supplied")
		}
		return cipher.DerivePassphraseWrapKey(opts.Passphrase, salt), nil
	default:
		return nil, fmt.Errorf("auditlog: unknown wrap method %q", method)
	}
}

// #endregion key-provisioning

// #region device-registry

// AuthorizeDevice wraps the master key for another device and adds it to
// the registry. The caller must already hold an unwrapped key.
func (s *Store) AuthorizeDevice(deviceID string, method cipher.WrapMethod, deviceSecret []byte, passphrase string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("salt: %w", err)
	}
	wrapKey, err := deriveWrapKey(method, Options{DeviceSecret: deviceSecret, Passphrase: passphrase}, salt)
	if err != nil {
		return err
	}
	wrapped, err := cipher.WrapKey(wrapKey, s.masterKey, deviceID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO device_keys (device_id, wrapped_key, wrap_method, wrap_salt, authorized, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		deviceID, wrapped, string(method), salt, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert device key: %w", err)
	}
	return nil
}

// RevokeDevice marks a registry row unauthorized. The wrapped blob stays:
// the registry is append-only history, not a mutable ACL.
func (s *Store) RevokeDevice(deviceID string) error {
	_, err := s.db.Exec(`UPDATE device_keys SET authorized = 0 WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	return nil
}

// Devices lists the registry without key material.
func (s *Store) Devices() ([]DeviceKey, error) {
	rows, err := s.db.Query(`SELECT device_id, wrap_method, authorized, created_at FROM device_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceKey
	for rows.Next() {
		var d DeviceKey
		var authorized int
		var created string
		if err := rows.Scan(&d.DeviceID, &d.WrapMethod, &authorized, &created); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.Authorized = authorized == 1
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// #endregion device-registry

// #region chain

func genesisHash() string {
	sum := sha256.Sum256([]byte("restraint/log/genesis/v1"))
	return hex.EncodeToString(sum[:])
}

// nextChain links one entry id onto the running chain: next = H(prev ‖ id).
func nextChain(prev, entryID string) string {
	sum := sha256.Sum256([]byte(prev + entryID))
	return hex.EncodeToString(sum[:])
}

func hashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain recomputes the full chain from the genesis value and compares
// every stored link and the integrity head. Returns the entry count.
func (s *Store) VerifyChain() (int, error) {
	rows, err := s.db.Query(`SELECT id, chain_hash FROM log_entries ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("read chain: %w", err)
	}
	defer rows.Close()

	chain := genesisHash()
	count := 0
	for rows.Next() {
		var id, stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return count, fmt.Errorf("scan chain: %w", err)
		}
		chain = nextChain(chain, id)
		if chain != stored {
			return count, fmt.Errorf("%w: entry %s at position %d", ErrIntegrity, id, count)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	var head string
	var stored int
	if err := s.db.QueryRow(`SELECT head_hash, entry_count FROM integrity WHERE id = 1`).Scan(&head, &stored); err != nil {
		return count, fmt.Errorf("read integrity: %w", err)
	}
	if head != chain || stored != count {
		return count, fmt.Errorf("%w: head mismatch (stored %d entries, recomputed %d)", ErrIntegrity, stored, count)
	}
	return count, nil
}

// #endregion chain

// #region append

// AppendEvaluation writes one evaluation at the sliding-scale level the
// trigger set demands.
func (s *Store) AppendEvaluation(action, actionContext, rawInput string, eval trigger.Evaluation) (LogEntry, error) {
	ts := s.now().UTC()
	actionID := hashHex(action, ts.Format(time.RFC3339Nano))
	level, retention := scale(eval)

	pl := payload{TriggerFlags: eval.Flags()}
	if level == LevelFull {
		pl.ActionDescription = action
		pl.Context = actionContext
		pl.RawInput = rawInput
		for _, t := range eval.Triggers {
			pl.AuditTrail = append(pl.AuditTrail,
				fmt.Sprintf("%s[%s] conf=%.2f: %s", t.Kind, t.Severity, t.Confidence, t.Evidence))
		}
	}
	return s.append(ts, level, retention, actionID, pl)
}

// AppendDecision writes the decision reached for a previously paused
// evaluation, correlated through the same action id.
func (s *Store) AppendDecision(actionID string, eval trigger.Evaluation, dec DecisionRecord) (LogEntry, error) {
	ts := s.now().UTC()
	level, retention := scale(eval)

	pl := payload{
		TriggerFlags:   eval.Flags(),
		DecisionAction: dec.Action,
		RationaleHash:  dec.RationaleHash,
	}
	if level == LevelFull {
		trail := []string{fmt.Sprintf("decision=%s override_used=%v", dec.Action, dec.OverrideUsed)}
		if dec.ModifiedScope != "" {
			trail = append(trail, "modified_scope: "+dec.ModifiedScope)
		}
		if dec.DeferUntil != nil {
			trail = append(trail, "defer_until: "+dec.DeferUntil.UTC().Format(time.RFC3339))
		}
		pl.AuditTrail = trail
	}
	return s.append(ts, level, retention, actionID, pl)
}

// AppendEvent writes a standalone summary entry for auditable system events
// (emergency override use, auth denials).
func (s *Store) AppendEvent(event, detail string) (LogEntry, error) {
	ts := s.now().UTC()
	actionID := hashHex(event, ts.Format(time.RFC3339Nano))
	return s.append(ts, LevelSummary, RetentionExtended, actionID, payload{
		TriggerFlags: event,
		AuditTrail:   []string{detail},
	})
}

// append is the single writer: one transaction extends the chain and the
// integrity head together.
func (s *Store) append(ts time.Time, level Level, retention Retention, actionID string, pl payload) (LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	signedLogID := hashHex(actionID, s.deviceID, ts.Format(time.RFC3339Nano))

	data, err := json.Marshal(pl)
	if err != nil {
		return LogEntry{}, fmt.Errorf("marshal payload: %w", err)
	}
	blob, err := cipher.Seal(s.masterKey, data, []byte(id))
	if err != nil {
		return LogEntry{}, fmt.Errorf("seal payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return LogEntry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var head string
	var count int
	if err := tx.QueryRow(`SELECT head_hash, entry_count FROM integrity WHERE id = 1`).Scan(&head, &count); err != nil {
		return LogEntry{}, fmt.Errorf("read integrity: %w", err)
	}
	chain := nextChain(head, id)

	if _, err := tx.Exec(
		`INSERT INTO log_entries (id, created_at, level, retention, action_id, signed_log_id, payload, chain_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ts.Format(time.RFC3339Nano), string(level), string(retention), actionID, signedLogID, blob, chain,
	); err != nil {
		return LogEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE integrity SET head_hash = ?, entry_count = ? WHERE id = 1`, chain, count+1,
	); err != nil {
		return LogEntry{}, fmt.Errorf("update integrity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return LogEntry{}, fmt.Errorf("commit: %w", err)
	}

	return LogEntry{
		ID:             id,
		CreatedAt:      ts,
		Level:          level,
		Retention:      retention,
		ActionID:       actionID,
		SignedLogID:    signedLogID,
		TriggerFlags:   pl.TriggerFlags,
		DecisionAction: pl.DecisionAction,
		RationaleHash:  pl.RationaleHash,
	}, nil
}

// scale applies the sliding-scale policy: summary by default, full when the
// evaluation demands audit, carries a critical trigger, a high emotional
// spike, or three or more co-occurring triggers.
func scale(eval trigger.Evaluation) (Level, Retention) {
	level := LevelSummary
	if eval.AuditRequired ||
		eval.MaxSeverity() == trigger.SeverityCritical ||
		eval.HasKindAtLeast(trigger.KindEmotionalSpike, trigger.SeverityHigh) ||
		len(eval.Triggers) >= 3 {
		level = LevelFull
	}

	retention := RetentionStandard
	switch {
	case eval.AuditRequired || eval.MaxSeverity() == trigger.SeverityCritical:
		retention = RetentionPermanent
	case len(eval.Triggers) > 0:
		retention = RetentionExtended
	}
	return level, retention
}

// #endregion append

// #region read

// Unlock verifies both auth factors. A denial is itself recorded as a
// summary entry before the error is returned.
func (s *Store) Unlock(operatorProof string, attestation []byte) error {
	if err := s.guard.Unlock(operatorProof, attestation); err != nil {
		s.logDenial("unlock", err)
		return err
	}
	return nil
}

// EmergencyUnlock grants single-use read access under a high or critical
// emotional state. Use is auditable and imposes a post-use time-lock.
func (s *Store) EmergencyUnlock(emotionalLevel trigger.Severity) error {
	if err := s.guard.EmergencyUnlock(emotionalLevel); err != nil {
		s.logDenial("emergency_unlock", err)
		return err
	}
	if _, err := s.AppendEvent("emergency_log_access", fmt.Sprintf("granted at emotional level %s", emotionalLevel)); err != nil {
		s.logger.Warn("failed to record emergency access", zap.Error(err))
	}
	return nil
}

// Recent returns the newest entries (decrypted summaries). Requires an
// unlocked guard; the full chain is verified before anything is returned.
func (s *Store) Recent(limit int) ([]LogEntry, error) {
	if err := s.authorizeRead(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, created_at, level, retention, action_id, signed_log_id, payload
		 FROM log_entries ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		entry, _, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Entry returns one entry with full detail (for promoted entries the raw
// action text and audit trail are included).
func (s *Store) Entry(id string) (FullLogEntry, error) {
	if err := s.authorizeRead(); err != nil {
		return FullLogEntry{}, err
	}

	row := s.db.QueryRow(
		`SELECT id, created_at, level, retention, action_id, signed_log_id, payload
		 FROM log_entries WHERE id = ?`, id,
	)
	entry, pl, err := s.scanEntry(row)
	if err != nil {
		return FullLogEntry{}, err
	}
	return FullLogEntry{
		LogEntry:          entry,
		ActionDescription: pl.ActionDescription,
		Context:           pl.Context,
		RawInput:          pl.RawInput,
		AuditTrail:        pl.AuditTrail,
	}, nil
}

func (s *Store) authorizeRead() error {
	if err := s.guard.Authorize(); err != nil {
		s.logDenial("read", err)
		return err
	}
	if _, err := s.VerifyChain(); err != nil {
		return err
	}
	return nil
}

func (s *Store) logDenial(op string, cause error) {
	if _, err := s.AppendEvent("auth_denied", fmt.Sprintf("%s: %v", op, cause)); err != nil {
		s.logger.Warn("failed to record auth denial", zap.Error(err))
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntry(row scanner) (LogEntry, payload, error) {
	var e LogEntry
	var created, level, retention string
	var blob []byte
	if err := row.Scan(&e.ID, &created, &level, &retention, &e.ActionID, &e.SignedLogID, &blob); err != nil {
		return LogEntry{}, payload{}, fmt.Errorf("scan entry: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	e.Level = Level(level)
	e.Retention = Retention(retention)

	plain, err := cipher.Open(s.masterKey, blob, []byte(e.ID))
	if err != nil {
		return LogEntry{}, payload{}, fmt.Errorf("decrypt entry %s: %w", e.ID, err)
	}
	var pl payload
	if err := json.Unmarshal(plain, &pl); err != nil {
		return LogEntry{}, payload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	e.TriggerFlags = pl.TriggerFlags
	e.DecisionAction = pl.DecisionAction
	e.RationaleHash = pl.RationaleHash
	return e, pl, nil
}

// #endregion read
