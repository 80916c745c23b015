package cognitive

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/classify"
)

// #endregion

// #region schema

const patternsSchema = `
CREATE TABLE IF NOT EXISTS cognitive_patterns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL DEFAULT 'decision',
	domain     TEXT NOT NULL,
	skill      TEXT NOT NULL DEFAULT '',
	context    TEXT NOT NULL DEFAULT '',
	input      TEXT NOT NULL DEFAULT '',
	response   TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL
);
`

const patternsIndex = `
CREATE INDEX IF NOT EXISTS idx_cognitive_patterns_domain
ON cognitive_patterns(domain);
`

// #endregion schema

// #region types

// Pattern kinds. Query patterns are a data trail only; archetype and
// episode statistics read decisions.
const (
	PatternQuery    = "query"
	PatternDecision = "decision"
)

// Pattern is one timestamped record of a capability query or a reflection
// decision. Used only to adjust profile confidence and archetype
// statistics, never to change proficiency.
type Pattern struct {
	Kind       string // PatternQuery or PatternDecision
	Domain     classify.Domain
	Skill      string
	Context    string
	Input      string
	Response   string
	Outcome    string // "", "success", "failure"
	Confidence float64
	CreatedAt  time.Time
}

// Archetype is an aggregated decision shape: domain plus response prefix,
// with decay-weighted frequency and success rate.
type Archetype struct {
	Domain         classify.Domain
	ResponsePrefix string
	Frequency      int
	SuccessRate    float64
}

// Episode is a past pattern surfaced for the reflection protocol's
// historical step.
type Episode struct {
	Input     string
	Response  string
	Outcome   string
	CreatedAt time.Time
	Shared    int // keyword overlap with the query
}

// #endregion types

// #region signature

// Outcome confidence deltas: small, bounded, advisory.
const (
	successDelta = 0.05
	failureDelta = -0.1
)

// decayHalfLife weights recent patterns more in archetype statistics.
const decayHalfLife = 14.0 * 24.0 // hours

// Signature is the passive learning loop over decision patterns.
type Signature struct {
	db      *sql.DB
	profile *capability.Profile
	logger  *zap.Logger
	now     func() time.Time
}

// NewSignature initializes the patterns table over a shared handle.
func NewSignature(db *sql.DB, profile *capability.Profile, logger *zap.Logger) (*Signature, error) {
	if _, err := db.Exec(patternsSchema); err != nil {
		return nil, fmt.Errorf("migrate patterns: %w", err)
	}
	if _, err := db.Exec(patternsIndex); err != nil {
		return nil, fmt.Errorf("index patterns: %w", err)
	}
	return &Signature{db: db, profile: profile, logger: logger, now: time.Now}, nil
}

// Record persists one pattern row. An unset kind records a decision.
func (s *Signature) Record(p Pattern) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if p.Kind == "" {
		p.Kind = PatternDecision
	}
	_, err := s.db.Exec(
		`INSERT INTO cognitive_patterns (kind, domain, skill, context, input, response, outcome, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Kind, string(p.Domain), p.Skill, p.Context, p.Input, p.Response, p.Outcome,
		p.Confidence, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record pattern: %w", err)
	}
	return nil
}

// RecordQuery persists one capability assessment as a query pattern. It
// satisfies the capability assessor's recorder.
func (s *Signature) RecordQuery(domain classify.Domain, skill, input, response string, confidence float64) error {
	return s.Record(Pattern{
		Kind:       PatternQuery,
		Domain:     domain,
		Skill:      skill,
		Input:      input,
		Response:   response,
		Confidence: confidence,
	})
}

// #endregion signature

// #region archetypes

// Archetypes aggregates the domain's patterns into decision archetypes,
// decay-weighted so recent behavior dominates.
func (s *Signature) Archetypes(domain classify.Domain) ([]Archetype, error) {
	rows, err := s.db.Query(
		`SELECT response, outcome, created_at FROM cognitive_patterns
		 WHERE domain = ? AND kind = ? AND response != ''`, string(domain), PatternDecision,
	)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	type accum struct {
		count       int
		weightedOK  float64
		totalWeight float64
	}
	now := s.now()
	byPrefix := make(map[string]*accum)

	for rows.Next() {
		var response, outcome, createdStr string
		if err := rows.Scan(&response, &outcome, &createdStr); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			continue
		}
		prefix := responsePrefix(response)
		a, ok := byPrefix[prefix]
		if !ok {
			a = &accum{}
			byPrefix[prefix] = a
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / decayHalfLife)
		a.count++
		a.totalWeight += weight
		if outcome == "success" {
			a.weightedOK += weight
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []Archetype
	for prefix, a := range byPrefix {
		rate := 0.0
		if a.totalWeight > 0 {
			rate = a.weightedOK / a.totalWeight
		}
		out = append(out, Archetype{
			Domain:         domain,
			ResponsePrefix: prefix,
			Frequency:      a.count,
			SuccessRate:    rate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].ResponsePrefix < out[j].ResponsePrefix
	})
	return out, nil
}

// PredictResponse returns the most established archetype for a domain, or
// ok=false with fewer than 3 samples. Advisory only, never a gate bypass.
func (s *Signature) PredictResponse(domain classify.Domain) (Archetype, bool, error) {
	archetypes, err := s.Archetypes(domain)
	if err != nil {
		return Archetype{}, false, err
	}
	for _, a := range archetypes {
		if a.Frequency >= 3 {
			return a, true, nil
		}
	}
	return Archetype{}, false, nil
}

func responsePrefix(response string) string {
	fields := strings.Fields(strings.ToLower(response))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// #endregion archetypes

// #region outcomes

// ApplyOutcome feeds a learning outcome back into profile confidence:
// success +0.05 capped at 1.0, failure -0.1 floored at 0.1. Proficiency is
// never touched.
func (s *Signature) ApplyOutcome(domain classify.Domain, skill string, success bool) error {
	delta := failureDelta
	if success {
		delta = successDelta
	}
	if err := s.profile.AdjustConfidence(domain, skill, delta); err != nil {
		return fmt.Errorf("adjust confidence: %w", err)
	}
	s.logger.Debug("learning outcome applied",
		zap.String("domain", string(domain)), zap.String("skill", skill),
		zap.Bool("success", success))
	return nil
}

// MarkOutcome stamps the newest unresolved decision pattern for the given
// action input. A missing match is not an error; there is simply nothing to
// resolve.
func (s *Signature) MarkOutcome(input, outcome string) error {
	_, err := s.db.Exec(
		`UPDATE cognitive_patterns SET outcome = ?
		 WHERE id = (
			SELECT id FROM cognitive_patterns
			WHERE kind = ? AND input = ? AND outcome = ''
			ORDER BY id DESC LIMIT 1
		 )`,
		outcome, PatternDecision, input,
	)
	if err != nil {
		return fmt.Errorf("mark outcome: %w", err)
	}
	return nil
}

// #endregion outcomes

// #region episodes

// SimilarEpisodes finds past patterns whose input shares the most keywords
// with the query text. Returns at most limit episodes with at least two
// shared keywords.
func (s *Signature) SimilarEpisodes(text string, limit int) ([]Episode, error) {
	queryTokens := tokenize(text)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT input, response, outcome, created_at FROM cognitive_patterns
		 WHERE input != '' AND kind = ? ORDER BY id DESC LIMIT 200`, PatternDecision,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var createdStr string
		if err := rows.Scan(&ep.Input, &ep.Response, &ep.Outcome, &createdStr); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		ep.Shared = sharedKeywords(queryTokens, tokenize(ep.Input))
		if ep.Shared >= 2 {
			episodes = append(episodes, ep)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].Shared != episodes[j].Shared {
			return episodes[i].Shared > episodes[j].Shared
		}
		return episodes[i].CreatedAt.After(episodes[j].CreatedAt)
	})
	if len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes, nil
}

// #endregion episodes
