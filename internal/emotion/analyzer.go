package emotion

// #region imports
import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/classify"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region types

// SubScores are the independent components of an emotional reading.
type SubScores struct {
	Lexical float64 // frustration/sentiment phrase density
	Cadence float64 // punctuation, caps, repeated-character pressure
	Lexicon float64 // hot-lexicon urgency intensity
}

// Reading is one assessment of the operator's linguistic state.
type Reading struct {
	Score          float64 // confidence-weighted combination, [0,1]
	Sub            SubScores
	Spike          bool
	Level          trigger.Severity
	BaselineBefore float64
	Matches        []string // phrases that drove the score
}

// #endregion types

// #region analyzer

// Sub-score reliability weights for the combined average. Cadence is the
// most mechanical signal so it carries the most weight.
const (
	lexicalWeight = 0.8
	cadenceWeight = 0.9
	lexiconWeight = 0.7
)

// extremeSubScore marks any single sub-score as a spike on its own.
const extremeSubScore = 0.9

// spikeMargin is how far above baseline a combined score must land.
const spikeMargin = 0.3

// Analyzer scores linguistic intensity against a persisted running baseline.
type Analyzer struct {
	mu       sync.Mutex
	baseline *Baseline
	logger   *zap.Logger
}

// NewAnalyzer loads the baseline from path. A missing or corrupt baseline
// file initializes defaults; it never fails the caller.
func NewAnalyzer(path string, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		baseline: LoadBaseline(path, logger),
		logger:   logger,
	}
}

// #endregion analyzer

// #region assess

// Assess scores rawInput (with optional conversation context), detects a
// spike against the baseline, and updates the baseline as a side effect.
func (a *Analyzer) Assess(rawInput, context string) Reading {
	sub, matched := subScores(rawInput, context)
	score := combine(sub)

	a.mu.Lock()
	before := a.baseline.Score
	a.baseline.Update(score)
	a.mu.Unlock()

	spike := score > before+spikeMargin ||
		sub.Lexical >= extremeSubScore ||
		sub.Cadence >= extremeSubScore ||
		sub.Lexicon >= extremeSubScore

	return Reading{
		Score:          score,
		Sub:            sub,
		Spike:          spike,
		Level:          level(score),
		BaselineBefore: before,
		Matches:        matched,
	}
}

// Trigger converts a reading into at most one EmotionalSpike trigger.
// Returns nil when no spike was detected.
func (a *Analyzer) Trigger(r Reading) *trigger.Trigger {
	if !r.Spike {
		return nil
	}
	active := 0
	for _, v := range []float64{r.Sub.Lexical, r.Sub.Cadence, r.Sub.Lexicon} {
		if v > 0.15 {
			active++
		}
	}
	confidence := 0.5 + 0.15*float64(active)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return &trigger.Trigger{
		Kind:       trigger.KindEmotionalSpike,
		Severity:   r.Level,
		Confidence: confidence,
		Evidence: fmt.Sprintf("score %.2f over baseline %.2f (lexical=%.2f cadence=%.2f lexicon=%.2f)",
			r.Score, r.BaselineBefore, r.Sub.Lexical, r.Sub.Cadence, r.Sub.Lexicon),
		ContextRefs: r.Matches,
	}
}

// #endregion assess

// #region scoring

func subScores(rawInput, context string) (SubScores, []string) {
	var matched []string

	negative := classify.NegativeLexiconMatches(rawInput)
	matched = append(matched, negative...)
	lexical := clamp(0.25 * float64(len(negative)))
	// A frustrated surrounding conversation nudges the lexical score.
	if len(classify.NegativeLexiconMatches(context)) > 0 {
		lexical = clamp(lexical + 0.1)
	}

	hot := classify.HotLexiconMatches(rawInput)
	matched = append(matched, hot...)
	lexicon := clamp(0.35 * float64(len(hot)))

	return SubScores{
		Lexical: lexical,
		Cadence: cadence(rawInput),
		Lexicon: lexicon,
	}, matched
}

// cadence measures typographic pressure: exclamation marks, all-caps words,
// and repeated-character runs.
func cadence(input string) float64 {
	exclaims := strings.Count(input, "!")

	words := strings.Fields(input)
	capsWords := 0
	for _, w := range words {
		letters := 0
		upper := 0
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 3 && upper == letters {
			capsWords++
		}
	}
	capsFrac := 0.0
	if len(words) > 0 {
		capsFrac = float64(capsWords) / float64(len(words))
	}

	repeat := 0.0
	if hasRepeatedRun(input, 3) {
		repeat = 0.3
	}

	return clamp(0.2*float64(exclaims) + 3*capsFrac + repeat)
}

func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '!' && r != '?' {
			run = 0
			prev = 0
			continue
		}
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
			prev = r
		}
	}
	return false
}

// combine is a confidence-weighted average of the sub-scores.
func combine(s SubScores) float64 {
	total := lexicalWeight + cadenceWeight + lexiconWeight
	return (s.Lexical*lexicalWeight + s.Cadence*cadenceWeight + s.Lexicon*lexiconWeight) / total
}

func level(score float64) trigger.Severity {
	switch {
	case score >= 0.7:
		return trigger.SeverityCritical
	case score >= 0.55:
		return trigger.SeverityHigh
	case score >= 0.35:
		return trigger.SeverityMedium
	default:
		return trigger.SeverityLow
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion scoring
