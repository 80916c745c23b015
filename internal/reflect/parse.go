package reflect

// #region imports
import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// #endregion

// #region defer-parsing

var (
	hoursPattern   = regexp.MustCompile(`(\d+)\s*hour`)
	minutesPattern = regexp.MustCompile(`(\d+)\s*minute`)
)

// defaultDefer applies when the duration text is unparseable. The operator
// is told which interpretation was used; nothing is silently dropped.
const defaultDefer = time.Hour

// ParseDeferUntil interprets a defer duration: "N hour(s)", "N minute(s)",
// or "tomorrow" (next day 09:00 local). Anything else defaults to one hour.
func ParseDeferUntil(input string, now time.Time) time.Time {
	lower := strings.ToLower(strings.TrimSpace(input))

	if strings.Contains(lower, "tomorrow") {
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 9, 0, 0, 0, now.Location())
	}
	if m := hoursPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return now.Add(time.Duration(n) * time.Hour)
		}
	}
	if m := minutesPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return now.Add(time.Duration(n) * time.Minute)
		}
	}
	return now.Add(defaultDefer)
}

// parseChoice normalizes the step-6 answer to one of the three actions.
func parseChoice(input string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "authorize", "a", "1":
		return ActionAuthorize, true
	case "modify", "modify scope", "modify_scope", "m", "2":
		return ActionModifyScope, true
	case "defer", "d", "3":
		return ActionDefer, true
	default:
		return "", false
	}
}

// #endregion defer-parsing
