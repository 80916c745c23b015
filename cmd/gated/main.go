package main

// #region imports
import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/auditlog"
	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/cognitive"
	"github.com/kestrelworks/restraint/internal/config"
	"github.com/kestrelworks/restraint/internal/emotion"
	"github.com/kestrelworks/restraint/internal/gate"
	"github.com/kestrelworks/restraint/internal/proportion"
	"github.com/kestrelworks/restraint/internal/reflect"
	"github.com/kestrelworks/restraint/internal/signals"
)

// #endregion

// #region main
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load(os.Getenv("RESTRAINT_CONFIG"), logger)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	opts := auditlog.Options{
		DeviceID:       cfg.DeviceID,
		DeviceSecret:   []byte(cfg.DeviceSecret),
		Passphrase:     cfg.LogPassphrase,
		OperatorSecret: cfg.OperatorSecret,
		Logger:         logger,
	}
	store, err := auditlog.Open(cfg.DBPath, opts)
	if err != nil {
		log.Fatalf("open audit log: %v", err)
	}
	defer store.Close()

	profile, err := capability.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("load capability profile: %v", err)
	}

	analyzer := emotion.NewAnalyzer(cfg.BaselinePath, logger)
	assessor := capability.NewAssessor(profile, cfg.Policies(logger), logger)
	prop := proportion.NewAssessor(logger)
	collector := signals.NewCollector(analyzer, assessor, prop)

	signature, err := cognitive.NewSignature(store.DB(), profile, logger)
	if err != nil {
		log.Fatalf("init cognitive signature: %v", err)
	}
	assessor.SetRecorder(signature)
	engine, err := reflect.NewEngine(store.DB(), signature, prop, cfg.OverridePhrase, logger)
	if err != nil {
		log.Fatalf("init reflection engine: %v", err)
	}
	g := gate.New(collector, engine, store, signature, cfg.OverridePhrase, logger)

	fmt.Println("Restraint gate ready.")
	fmt.Printf("  DB: %s | device: %s\n", cfg.DBPath, cfg.DeviceID)
	fmt.Println("Describe an action to evaluate it, or use: sessions | resume <id> | recent [N] | outcome success|failure <action> | override <phrase> | quit")

	repl(g, store, opts)
}

// #endregion main

// #region repl

func repl(g *gate.Gate, store *auditlog.Store, opts auditlog.Options) {
	scanner := bufio.NewScanner(os.Stdin)
	prompter := stdinPrompter(scanner)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		switch {
		case line == "sessions":
			runSessions(g)
		case strings.HasPrefix(line, "resume "):
			runReflection(g, prompter, strings.TrimSpace(strings.TrimPrefix(line, "resume ")))
		case line == "recent" || strings.HasPrefix(line, "recent "):
			runRecent(g, store, opts, line)
		case strings.HasPrefix(line, "outcome "):
			runOutcome(g, strings.TrimPrefix(line, "outcome "))
		case strings.HasPrefix(line, "override "):
			runOverride(g, strings.TrimPrefix(line, "override "))
		default:
			runEvaluate(g, prompter, scanner, line)
		}
	}
}

func stdinPrompter(scanner *bufio.Scanner) reflect.Prompter {
	return func(p reflect.Prompt) (string, error) {
		if p.Text != "" {
			fmt.Println(p.Text)
		}
		if p.Question != "" {
			fmt.Printf("%s\n>> ", p.Question)
			if !scanner.Scan() {
				return "", fmt.Errorf("input closed")
			}
			return scanner.Text(), nil
		}
		return "", nil
	}
}

// #endregion repl

// #region commands

func runEvaluate(g *gate.Gate, prompter reflect.Prompter, scanner *bufio.Scanner, action string) {
	fmt.Print("context (optional): ")
	if !scanner.Scan() {
		return
	}
	actionContext := strings.TrimSpace(scanner.Text())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := g.Evaluate(ctx, action, actionContext, action)
	cancel()
	if err != nil {
		fmt.Printf("evaluate: %v\n", err)
		return
	}
	if !res.Paused {
		fmt.Printf("PROCEED  action=%s\n", res.ActionID)
		return
	}
	fmt.Printf("PAUSED   action=%s flags=%s\n", res.ActionID, res.Flags)
	runReflection(g, prompter, res.SessionID)
}

func runReflection(g *gate.Gate, prompter reflect.Prompter, sessionID string) {
	dec, err := g.ConductReflection(sessionID, prompter)
	if err != nil {
		fmt.Printf("reflection: %v\n", err)
		return
	}
	fmt.Printf("DECIDED  %s", dec.Action)
	if dec.ModifiedScope != "" {
		fmt.Printf("  scope: %s", dec.ModifiedScope)
	}
	if dec.DeferUntil != nil {
		fmt.Printf("  until: %s", dec.DeferUntil.Format(time.RFC3339))
	}
	fmt.Println()
	if rem := g.CooldownRemaining(); rem > 0 {
		fmt.Printf("cooldown active for %s\n", rem.Round(time.Second))
	}
}

func runSessions(g *gate.Gate) {
	ids, err := g.AwaitingSessions()
	if err != nil {
		fmt.Printf("sessions: %v\n", err)
		return
	}
	if len(ids) == 0 {
		fmt.Println("no sessions awaiting input")
		return
	}
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
}

func runRecent(g *gate.Gate, store *auditlog.Store, opts auditlog.Options, line string) {
	limit := 10
	if rest := strings.TrimSpace(strings.TrimPrefix(line, "recent")); rest != "" {
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			limit = n
		}
	}
	// Reads need the dual-auth unlock; appends do not.
	if err := store.Unlock(opts.OperatorSecret, auditlog.Attestation(opts)); err != nil {
		fmt.Printf("unlock: %v\n", err)
		return
	}
	entries, err := g.RecentActivity(limit)
	if err != nil {
		fmt.Printf("recent: %v\n", err)
		return
	}
	for _, e := range entries {
		fmt.Printf("  %s  %-7s %-9s %-18s %s\n",
			e.CreatedAt.Format(time.RFC3339), e.Level, e.Retention, e.DecisionAction, e.TriggerFlags)
	}
}

func runOutcome(g *gate.Gate, args string) {
	verdict, action, ok := strings.Cut(strings.TrimSpace(args), " ")
	if !ok || (verdict != "success" && verdict != "failure") {
		fmt.Println("usage: outcome success|failure <action text>")
		return
	}
	if err := g.ReportOutcome(strings.TrimSpace(action), verdict == "success"); err != nil {
		fmt.Printf("outcome: %v\n", err)
		return
	}
	fmt.Println("outcome recorded")
}

func runOverride(g *gate.Gate, phrase string) {
	if g.CheckEmergencyOverride(strings.TrimSpace(phrase)) {
		fmt.Println("override accepted, cooldown cleared")
	} else {
		fmt.Println("override rejected")
	}
}

// #endregion commands
