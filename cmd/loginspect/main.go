package main

// #region imports
import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/restraint/internal/auditlog"
	"github.com/kestrelworks/restraint/internal/config"
)

// #endregion

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the audit log database")
	last := flag.Int("last", 20, "show N most recent entries")
	entryID := flag.String("entry", "", "show single entry detail")
	verify := flag.Bool("verify", false, "verify the hash chain and exit")
	devices := flag.Bool("devices", false, "list the device-key registry")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: loginspect --db path/to/restraint.db [--last N] [--entry id] [--verify] [--devices] [--json]")
		os.Exit(2)
	}

	cfg := config.Load(os.Getenv("RESTRAINT_CONFIG"), zap.NewNop())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	opts := auditlog.Options{
		DeviceID:       cfg.DeviceID,
		DeviceSecret:   []byte(cfg.DeviceSecret),
		Passphrase:     cfg.LogPassphrase,
		OperatorSecret: cfg.OperatorSecret,
		Logger:         zap.NewNop(),
	}

	store, err := auditlog.Open(*dbPath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var runErr error
	switch {
	case *verify:
		runErr = runVerify(store, *jsonOut)
	case *devices:
		runErr = runDevices(store, *jsonOut)
	case *entryID != "":
		runErr = runDetail(store, opts, *entryID, *jsonOut)
	default:
		runErr = runList(store, opts, *last, *jsonOut)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// unlock satisfies the dual-auth guard before any read. Both factors come
// from this device's configuration; a missing operator secret fails here,
// not deeper in the read path.
func unlock(store *auditlog.Store, opts auditlog.Options) error {
	return store.Unlock(opts.OperatorSecret, auditlog.Attestation(opts))
}

// #endregion main

// #region verify-mode

func runVerify(store *auditlog.Store, jsonOut bool) error {
	count, err := store.VerifyChain()
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"ok": true, "entries": count})
	}
	fmt.Printf("chain ok: %d entries\n", count)
	return nil
}

// #endregion verify-mode

// #region list-mode

type listRow struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	Level          string `json:"level"`
	Retention      string `json:"retention"`
	ActionID       string `json:"action_id"`
	TriggerFlags   string `json:"trigger_flags,omitempty"`
	DecisionAction string `json:"decision_action,omitempty"`
}

func runList(store *auditlog.Store, opts auditlog.Options, last int, jsonOut bool) error {
	if err := unlock(store, opts); err != nil {
		return err
	}
	entries, err := store.Recent(last)
	if err != nil {
		return err
	}

	rows := make([]listRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, listRow{
			ID:             e.ID,
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
			Level:          string(e.Level),
			Retention:      string(e.Retention),
			ActionID:       short(e.ActionID),
			TriggerFlags:   e.TriggerFlags,
			DecisionAction: e.DecisionAction,
		})
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	fmt.Printf("%-36s  %-20s  %-7s  %-9s  %-12s  %-14s  %s\n",
		"ID", "CREATED", "LEVEL", "RETENTION", "ACTION", "DECISION", "FLAGS")
	for _, r := range rows {
		fmt.Printf("%-36s  %-20s  %-7s  %-9s  %-12s  %-14s  %s\n",
			r.ID, r.CreatedAt, r.Level, r.Retention, r.ActionID, r.DecisionAction, r.TriggerFlags)
	}
	return nil
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion list-mode

// #region detail-mode

func runDetail(store *auditlog.Store, opts auditlog.Options, id string, jsonOut bool) error {
	if err := unlock(store, opts); err != nil {
		return err
	}
	entry, err := store.Entry(id)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"id":                 entry.ID,
			"created_at":         entry.CreatedAt.Format(time.RFC3339Nano),
			"level":              string(entry.Level),
			"retention":          string(entry.Retention),
			"action_id":          entry.ActionID,
			"signed_log_id":      entry.SignedLogID,
			"trigger_flags":      entry.TriggerFlags,
			"decision_action":    entry.DecisionAction,
			"rationale_hash":     entry.RationaleHash,
			"action_description": entry.ActionDescription,
			"context":            entry.Context,
			"raw_input":          entry.RawInput,
			"audit_trail":        entry.AuditTrail,
		})
	}

	fmt.Printf("entry:          %s\n", entry.ID)
	fmt.Printf("created:        %s\n", entry.CreatedAt.Format(time.RFC3339Nano))
	fmt.Printf("level:          %s\n", entry.Level)
	fmt.Printf("retention:      %s\n", entry.Retention)
	fmt.Printf("action id:      %s\n", entry.ActionID)
	fmt.Printf("signed log id:  %s\n", entry.SignedLogID)
	if entry.TriggerFlags != "" {
		fmt.Printf("triggers:       %s\n", entry.TriggerFlags)
	}
	if entry.DecisionAction != "" {
		fmt.Printf("decision:       %s\n", entry.DecisionAction)
		fmt.Printf("rationale hash: %s\n", entry.RationaleHash)
	}
	if entry.ActionDescription != "" {
		fmt.Printf("action:         %s\n", entry.ActionDescription)
	}
	if entry.Context != "" {
		fmt.Printf("context:        %s\n", entry.Context)
	}
	if entry.RawInput != "" {
		fmt.Printf("raw input:      %s\n", entry.RawInput)
	}
	if len(entry.AuditTrail) > 0 {
		fmt.Printf("audit trail:\n  %s\n", strings.Join(entry.AuditTrail, "\n  "))
	}
	return nil
}

// #endregion detail-mode

// #region devices-mode

func runDevices(store *auditlog.Store, jsonOut bool) error {
	devices, err := store.Devices()
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(devices)
	}
	fmt.Printf("%-20s  %-14s  %-10s  %s\n", "DEVICE", "WRAP", "AUTHORIZED", "CREATED")
	for _, d := range devices {
		fmt.Printf("%-20s  %-14s  %-10v  %s\n",
			d.DeviceID, d.WrapMethod, d.Authorized, d.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// #endregion devices-mode
