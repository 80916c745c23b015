package auditlog

// #region imports
import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region errors

var (
	// ErrAuthDenied is returned when either auth factor fails. Reads deny
	// cleanly; there is no partial log.
	ErrAuthDenied = errors.New("auditlog: dual-auth denied")
	// ErrLocked is returned while a post-emergency time-lock is active.
	ErrLocked = errors.New("auditlog: time-locked after emergency access")
)

// #endregion errors

// #region constants

// autoLock re-arms the dual-auth requirement after this window.
const autoLock = 10 * time.Minute

// emergencyTimeLock blocks all access for this long after an emergency
// override read is consumed.
const emergencyTimeLock = 30 * time.Minute

// attestLabel is the fixed message the platform attestation signs.
const attestLabel = "restraint/attest/v1"

// #endregion constants

// #region guard

// Guard enforces dual-auth on the read path: an operator-side factor
// (passphrase proof) and a system-side attestation must both succeed.
type Guard struct {
	mu           sync.Mutex
	operatorHash [32]byte
	attestSecret []byte

	unlockedAt  time.Time
	unlocked    bool
	emergency   bool // single-use emergency unlock pending
	lockedUntil time.Time

	now func() time.Time
}

// NewGuard builds a guard from the operator secret and the device
// attestation secret.
func NewGuard(operatorSecret string, attestSecret []byte) *Guard {
	return &Guard{
		operatorHash: sha256.Sum256([]byte(operatorSecret)),
		attestSecret: attestSecret,
		now:          time.Now,
	}
}

// Attest computes the system-side attestation signature the platform layer
// presents at unlock time.
func Attest(attestSecret []byte) []byte {
	mac := hmac.New(sha256.New, attestSecret)
	mac.Write([]byte(attestLabel))
	return mac.Sum(nil)
}

// #endregion guard

// #region unlock

// Unlock verifies both factors. Either failing denies; a time-lock from a
// prior emergency read denies regardless of factors.
func (g *Guard) Unlock(operatorProof string, attestation []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.now().Before(g.lockedUntil) {
		return ErrLocked
	}

	proofHash := sha256.Sum256([]byte(operatorProof))
	operatorOK := subtle.ConstantTimeCompare(proofHash[:], g.operatorHash[:]) == 1
	systemOK := hmac.Equal(attestation, Attest(g.attestSecret))

	if !operatorOK || !systemOK {
		return ErrAuthDenied
	}

	g.unlocked = true
	g.emergency = false
	g.unlockedAt = g.now()
	return nil
}

// EmergencyUnlock grants a single read without the operator factor. It is
// only available while the current emotional state is high or critical, and
// consuming it imposes a post-use time-lock.
func (g *Guard) EmergencyUnlock(emotionalLevel trigger.Severity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.now().Before(g.lockedUntil) {
		return ErrLocked
	}
	if !emotionalLevel.AtLeast(trigger.SeverityHigh) {
		return ErrAuthDenied
	}
	g.unlocked = true
	g.emergency = true
	g.unlockedAt = g.now()
	return nil
}

// Authorize gates one read. A normal unlock stays valid until the auto-lock
// window expires; an emergency unlock is consumed by the first read and
// starts the time-lock.
func (g *Guard) Authorize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.now().Before(g.lockedUntil) {
		return ErrLocked
	}
	if !g.unlocked {
		return ErrAuthDenied
	}
	if g.now().Sub(g.unlockedAt) > autoLock {
		g.unlocked = false
		return ErrAuthDenied
	}
	if g.emergency {
		g.unlocked = false
		g.emergency = false
		g.lockedUntil = g.now().Add(emergencyTimeLock)
	}
	return nil
}

// Lock re-arms the guard immediately.
func (g *Guard) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unlocked = false
	g.emergency = false
}

// #endregion unlock
