package capability

// #region imports
import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelworks/restraint/internal/classify"
)

// #endregion

// #region types

// SkillKey addresses one (domain, skill) cell of the profile.
type SkillKey struct {
	Domain classify.Domain
	Skill  string
}

// SkillRecord is the folded state of one skill. Proficiency is only set by
// explicit operator input; learning adjusts confidence and evidence only.
type SkillRecord struct {
	Proficiency int     // 1-10
	Confidence  float64 // [0.1, 1.0]
	Evidence    []string
	Limitations []string
}

// profileEvent is one line of the append-only profile file.
type profileEvent struct {
	Op     string          `json:"op"` // set_proficiency | add_evidence | adjust_confidence | add_limitation
	Domain classify.Domain `json:"domain"`
	Skill  string          `json:"skill"`
	Level  int             `json:"level,omitempty"`
	Delta  float64         `json:"delta,omitempty"`
	Text   string          `json:"text,omitempty"`
	At     time.Time       `json:"at"`
}

// #endregion types

// #region profile

const (
	confidenceFloor   = 0.1
	confidenceCeiling = 1.0
	initialConfidence = 0.5
)

// Profile is the operator capability profile: a fold over an append-only
// JSONL event file. The file is plaintext and never rewritten in place.
type Profile struct {
	mu     sync.Mutex
	path   string
	skills map[SkillKey]*SkillRecord
}

// LoadProfile folds the event file at path. A missing file yields an empty
// profile; a malformed line is an error, since the file is operator-owned
// ground truth.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{path: path, skills: make(map[SkillKey]*SkillRecord)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev profileEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("profile line %d: %w", line, err)
		}
		p.apply(ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return p, nil
}

// Lookup returns the folded record for a skill, or ok=false when unknown.
func (p *Profile) Lookup(domain classify.Domain, skill string) (SkillRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.skills[SkillKey{Domain: domain, Skill: skill}]
	if !ok {
		return SkillRecord{}, false
	}
	return *rec, true
}

// #endregion profile

// #region mutations

// SetProficiency records an explicit operator statement of skill level.
// This is the only operation that changes proficiency.
func (p *Profile) SetProficiency(domain classify.Domain, skill string, level int, evidence string) error {
	if level < 1 || level > 10 {
		return fmt.Errorf("proficiency %d out of range 1-10", level)
	}
	return p.append(profileEvent{Op: "set_proficiency", Domain: domain, Skill: skill, Level: level, Text: evidence})
}

// AddEvidence appends an observation to a skill's evidence list.
func (p *Profile) AddEvidence(domain classify.Domain, skill, evidence string) error {
	return p.append(profileEvent{Op: "add_evidence", Domain: domain, Skill: skill, Text: evidence})
}

// AddLimitation appends a known limitation to a skill.
func (p *Profile) AddLimitation(domain classify.Domain, skill, limitation string) error {
	return p.append(profileEvent{Op: "add_limitation", Domain: domain, Skill: skill, Text: limitation})
}

// AdjustConfidence shifts a skill's confidence by delta, clamped to
// [0.1, 1.0]. Unknown skills are ignored: confidence without an explicit
// proficiency statement would be meaningless.
func (p *Profile) AdjustConfidence(domain classify.Domain, skill string, delta float64) error {
	p.mu.Lock()
	_, known := p.skills[SkillKey{Domain: domain, Skill: skill}]
	p.mu.Unlock()
	if !known {
		return nil
	}
	return p.append(profileEvent{Op: "adjust_confidence", Domain: domain, Skill: skill, Delta: delta})
}

// append persists the event and folds it into memory.
func (p *Profile) append(ev profileEvent) error {
	ev.At = time.Now().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path != "" {
		if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
			return fmt.Errorf("profile dir: %w", err)
		}
		f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open profile for append: %w", err)
		}
		defer f.Close()
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal profile event: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("append profile event: %w", err)
		}
	}

	p.apply(ev)
	return nil
}

// apply folds one event. Caller holds the lock (or owns the profile during load).
func (p *Profile) apply(ev profileEvent) {
	key := SkillKey{Domain: ev.Domain, Skill: ev.Skill}
	rec, ok := p.skills[key]
	if !ok {
		rec = &SkillRecord{Confidence: initialConfidence}
		p.skills[key] = rec
	}

	switch ev.Op {
	case "set_proficiency":
		rec.Proficiency = ev.Level
		if ev.Text != "" {
			rec.Evidence = append(rec.Evidence, ev.Text)
		}
	case "add_evidence":
		rec.Evidence = append(rec.Evidence, ev.Text)
	case "add_limitation":
		rec.Limitations = append(rec.Limitations, ev.Text)
	case "adjust_confidence":
		rec.Confidence += ev.Delta
		if rec.Confidence < confidenceFloor {
			rec.Confidence = confidenceFloor
		}
		if rec.Confidence > confidenceCeiling {
			rec.Confidence = confidenceCeiling
		}
	}
}

// #endregion mutations
