package classify

import "strings"

// #region requirement

// Requirement is one (domain, skill) demand inferred from an action
// description, with the proficiency level the action appears to require.
type Requirement struct {
	Domain        Domain
	Skill         string
	RequiredLevel int // 1-10
	Matched       string
}

// Requirements parses an action description against the skill table.
// Returns nil when no rule matches; an unmatched action demands nothing.
func Requirements(action string) []Requirement {
	lower := strings.ToLower(action)

	delta := 0
	for _, m := range levelModifiers {
		if strings.Contains(lower, m.phrase) {
			delta += m.delta
		}
	}

	var reqs []Requirement
	seen := make(map[string]bool)
	for _, rule := range skillRules {
		for _, p := range rule.phrases {
			if !strings.Contains(lower, p) {
				continue
			}
			key := string(rule.domain) + "/" + rule.skill
			if seen[key] {
				break
			}
			seen[key] = true
			level := rule.baseLevel + delta
			if level > 10 {
				level = 10
			}
			reqs = append(reqs, Requirement{
				Domain:        rule.domain,
				Skill:         rule.skill,
				RequiredLevel: level,
				Matched:       p,
			})
			break
		}
	}
	return reqs
}

// #endregion requirement

// #region red-lines

// RedLine is a categorical limit detected in the action text.
type RedLine struct {
	Category RedLineCategory
	Matched  string
}

// RedLines scans the action for categorical limits. These flag regardless
// of the proportionality score.
func RedLines(action string) []RedLine {
	lower := strings.ToLower(action)
	var lines []RedLine
	seen := make(map[RedLineCategory]bool)
	for _, rule := range redLineRules {
		for _, p := range rule.phrases {
			if strings.Contains(lower, p) && !seen[rule.category] {
				seen[rule.category] = true
				lines = append(lines, RedLine{Category: rule.category, Matched: p})
				break
			}
		}
	}
	return lines
}

// #endregion red-lines

// #region scope-factors

// ScopeFactors are the five proportionality inputs, each normalized to [0,1].
type ScopeFactors struct {
	TimeEstimate    float64 // share of long-task cues
	Complexity      float64 // share of complexity cues
	Dependencies    float64 // count of distinct dependency nouns, scaled
	ImpactRadius    float64 // wide=0.9, medium=0.4, local=0.2
	AutomationRatio float64 // share of automation cues
}

// Scope derives the five factors from keyword cues in the action text.
func Scope(action string) ScopeFactors {
	lower := strings.ToLower(action)

	return ScopeFactors{
		TimeEstimate:    phraseShare(lower, longTaskPhrases, 3),
		Complexity:      phraseShare(lower, complexityPhrases, 3),
		Dependencies:    phraseShare(lower, dependencyPhrases, 4),
		ImpactRadius:    impactRadius(lower),
		AutomationRatio: phraseShare(lower, automationPhrases, 2),
	}
}

// phraseShare counts distinct matching phrases and scales so that `full`
// matches saturate the factor at 1.0.
func phraseShare(lower string, phrases []string, full int) float64 {
	count := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			count++
		}
	}
	v := float64(count) / float64(full)
	if v > 1 {
		return 1
	}
	return v
}

func impactRadius(lower string) float64 {
	for _, p := range wideImpactPhrases {
		if strings.Contains(lower, p) {
			return 0.9
		}
	}
	for _, p := range mediumImpactPhrases {
		if strings.Contains(lower, p) {
			return 0.4
		}
	}
	return 0.2
}

// #endregion scope-factors

// #region lexicons

// HotLexiconMatches returns the urgency phrases present in the input.
func HotLexiconMatches(input string) []string {
	return matches(input, hotLexicon)
}

// NegativeLexiconMatches returns the frustration phrases present in the input.
func NegativeLexiconMatches(input string) []string {
	return matches(input, negativeLexicon)
}

func matches(input string, lexicon []string) []string {
	lower := strings.ToLower(input)
	var found []string
	for _, p := range lexicon {
		if strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// #endregion lexicons
