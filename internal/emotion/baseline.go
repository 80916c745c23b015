package emotion

// #region imports
import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// #endregion

// #region baseline

// defaultBaseline is the starting score for a fresh operator.
const defaultBaseline = 0.2

// emaWeight is the exponential-update factor: new = 0.9*old + 0.1*sample.
const emaWeight = 0.1

// Baseline is the exponentially-updated running score for one operator.
type Baseline struct {
	Score     float64   `json:"score"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`

	path   string
	logger *zap.Logger
}

// LoadBaseline reads the baseline file at path. Missing or corrupt files
// initialize defaults; baseline trouble never fails an evaluation.
func LoadBaseline(path string, logger *zap.Logger) *Baseline {
	b := &Baseline{Score: defaultBaseline, path: path, logger: logger}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("baseline unreadable, using defaults", zap.String("path", path), zap.Error(err))
		}
		return b
	}
	if err := json.Unmarshal(data, b); err != nil {
		logger.Warn("baseline corrupt, using defaults", zap.String("path", path), zap.Error(err))
		return &Baseline{Score: defaultBaseline, path: path, logger: logger}
	}
	return b
}

// Update folds a sample into the running score and persists. Persist
// failures are logged, never returned.
func (b *Baseline) Update(sample float64) {
	b.Score = (1-emaWeight)*b.Score + emaWeight*sample
	b.Samples++
	b.UpdatedAt = time.Now().UTC()
	b.save()
}

func (b *Baseline) save() {
	if b.path == "" {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		b.logger.Warn("baseline marshal failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		b.logger.Warn("baseline dir create failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		b.logger.Warn("baseline write failed", zap.String("path", b.path), zap.Error(err))
	}
}

// #endregion baseline
