// Package config loads the gate's configuration from a YAML file with
// environment overrides. Missing files and bad values degrade to defaults;
// configuration never stops the gate from starting.
package config

// #region imports
import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/restraint/internal/capability"
	"github.com/kestrelworks/restraint/internal/classify"
)

// #endregion

// #region types

// DomainPolicy mirrors the per-domain uncertainty policy in YAML form.
type DomainPolicy struct {
	Phase             string  `yaml:"phase"`
	RiskTolerance     float64 `yaml:"risk_tolerance"`
	QuestionThreshold int     `yaml:"question_threshold"`
}

// Config is everything the gate needs to assemble its stack.
type Config struct {
	DeviceID       string `yaml:"device_id"`
	OverridePhrase string `yaml:"override_phrase"`
	LogPassphrase  string `yaml:"log_passphrase"`
	DeviceSecret   string `yaml:"device_secret"`
	OperatorSecret string `yaml:"operator_secret"`

	DBPath       string `yaml:"db_path"`
	BaselinePath string `yaml:"baseline_path"`
	ProfilePath  string `yaml:"profile_path"`

	Domains map[string]DomainPolicy `yaml:"domains"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DeviceID:     "local",
		DBPath:       "restraint.db",
		BaselinePath: "baseline.json",
		ProfilePath:  "profile.jsonl",
	}
}

// #endregion defaults

// #region load

// Load reads the YAML file at path and applies RESTRAINT_* environment
// overrides. A missing file yields defaults; a malformed file is reported
// but still yields defaults so the gate can come up.
func Load(path string, logger *zap.Logger) Config {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Info("no config file, using defaults", zap.String("path", path))
		case err != nil:
			logger.Warn("config unreadable, using defaults", zap.String("path", path), zap.Error(err))
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				logger.Warn("config malformed, using defaults", zap.String("path", path), zap.Error(err))
				cfg = Default()
			}
		}
	}

	cfg.DeviceID = envOr("RESTRAINT_DEVICE_ID", cfg.DeviceID)
	cfg.OverridePhrase = envOr("RESTRAINT_OVERRIDE_PHRASE", cfg.OverridePhrase)
	cfg.LogPassphrase = envOr("RESTRAINT_LOG_PASSPHRASE", cfg.LogPassphrase)
	cfg.DeviceSecret = envOr("RESTRAINT_DEVICE_SECRET", cfg.DeviceSecret)
	cfg.OperatorSecret = envOr("RESTRAINT_OPERATOR_SECRET", cfg.OperatorSecret)
	cfg.DBPath = envOr("RESTRAINT_DB", cfg.DBPath)
	cfg.BaselinePath = envOr("RESTRAINT_BASELINE", cfg.BaselinePath)
	cfg.ProfilePath = envOr("RESTRAINT_PROFILE", cfg.ProfilePath)
	return cfg
}

// Policies converts the YAML domain map into assessor policies, dropping
// entries with unknown phases.
func (c Config) Policies(logger *zap.Logger) map[classify.Domain]capability.DomainPolicy {
	if len(c.Domains) == 0 {
		return nil
	}
	out := make(map[classify.Domain]capability.DomainPolicy, len(c.Domains))
	for name, p := range c.Domains {
		phase := capability.Phase(p.Phase)
		if phase != capability.PhaseLearning && phase != capability.PhaseFullyKnown {
			logger.Warn("unknown phase in domain policy, skipping",
				zap.String("domain", name), zap.String("phase", p.Phase))
			continue
		}
		out[classify.Domain(name)] = capability.DomainPolicy{
			Phase:             phase,
			RiskTolerance:     clamp01(p.RiskTolerance),
			QuestionThreshold: p.QuestionThreshold,
		}
	}
	return out
}

// Validate reports fatal misconfiguration: things defaults cannot paper
// over, like a log store with no unlock material at all.
func (c Config) Validate() error {
	if c.LogPassphrase == "" && c.DeviceSecret == "" {
		return fmt.Errorf("config: either log_passphrase or device_secret must be set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion load
