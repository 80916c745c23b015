package signals

// #region imports
import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/emotion"
	"github.com/kestrelworks/restraint/internal/proportion"
	"github.com/kestrelworks/restraint/internal/trigger"
)

// #endregion

// #region collector

// Collector fans the same (action, context, rawInput) triple out to the
// three independent risk assessors and merges their triggers. Each assessor
// owns its own small piece of state (baseline, profile), so they can run
// concurrently with each other.
type Collector struct {
	emotion    *emotion.Analyzer
	capability *capability.Assessor
	proportion *proportion.Assessor
}

// NewCollector wires the three collectors.
func NewCollector(e *emotion.Analyzer, c *capability.Assessor, p *proportion.Assessor) *Collector {
	return &Collector{emotion: e, capability: c, proportion: p}
}

// #endregion collector

// #region collect

// kindOrder fixes the merge order so evaluations are deterministic
// regardless of which collector finishes first.
var kindOrder = map[trigger.Kind]int{
	trigger.KindEmotionalSpike:        0,
	trigger.KindCapabilityExceeded:    1,
	trigger.KindUncertaintyDetected:   2,
	trigger.KindDisproportionateScope: 3,
	trigger.KindCooldownActive:        4,
}

// Collect runs the three assessors in parallel and returns the merged
// trigger list. Collector-level failures recover locally; Collect itself
// never blocks an evaluation on a degraded signal.
func (c *Collector) Collect(ctx context.Context, action, actionContext, rawInput string) []trigger.Trigger {
	var mu sync.Mutex
	var merged []trigger.Trigger
	add := func(ts []trigger.Trigger) {
		mu.Lock()
		merged = append(merged, ts...)
		mu.Unlock()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		reading := c.emotion.Assess(rawInput, actionContext)
		if t := c.emotion.Trigger(reading); t != nil {
			add([]trigger.Trigger{*t})
		}
		return nil
	})
	g.Go(func() error {
		add(c.capability.Assess(action, actionContext))
		return nil
	})
	g.Go(func() error {
		res := c.proportion.Assess(action)
		add(c.proportion.Triggers(res))
		return nil
	})
	// Collectors never return errors; degraded signals fall back to defaults.
	_ = g.Wait()

	sort.SliceStable(merged, func(i, j int) bool {
		return kindOrder[merged[i].Kind] < kindOrder[merged[j].Kind]
	})
	return merged
}

// Proportionality re-runs the scope assessment alone. The reflection
// protocol uses it to present trade-offs without touching the emotional
// baseline again.
func (c *Collector) Proportionality(action string) proportion.Result {
	return c.proportion.Assess(action)
}

// #endregion collect
