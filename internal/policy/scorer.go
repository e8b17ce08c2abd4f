package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"tradeloop/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// artifact is the portable scorer exported by the offline trainer: a
// calibrated linear model over the versioned feature vector. The embedded
// feature hash pins the artifact to the exact feature spec it was trained
// on.
type artifact struct {
	FeatureVersion string    `json:"feature_version"`
	FeatureHash    string    `json:"feature_hash"`
	Weights        []float64 `json:"weights"`
	Bias           float64   `json:"bias"`
}

// Scorer scores feature vectors in [0,1]. A scorer without a loaded model is
// valid and always returns 1, so the hybrid policy behaves exactly like
// the rule policy.
type Scorer struct {
	path     string
	wantHash string

	mu    sync.RWMutex
	model *artifact
}

// NewScorer loads the artifact at path best-effort. wantHash is the live
// feature spec's hash; an artifact carrying a different hash is refused
// (spec drift between training and inference).
func NewScorer(path, wantHash string) *Scorer {
	s := &Scorer{path: path, wantHash: wantHash}
	if path == "" {
		return s
	}
	if err := s.reload(); err != nil {
		logger.Warnf("scorer model not loaded (%s): %v, scoring disabled", path, err)
	}
	return s
}

func (s *Scorer) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("parsing model artifact failed: %w", err)
	}
	if len(a.Weights) == 0 {
		return fmt.Errorf("model artifact has no weights")
	}
	if s.wantHash != "" && a.FeatureHash != s.wantHash {
		return fmt.Errorf("model feature hash %s does not match live feature spec %s", a.FeatureHash, s.wantHash)
	}
	s.mu.Lock()
	s.model = &a
	s.mu.Unlock()
	logger.Infof("scorer model loaded: path=%s feature_version=%s", s.path, a.FeatureVersion)
	return nil
}

// Available reports whether a model is loaded.
func (s *Scorer) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Score returns sigmoid(w·x + b) clamped to [0,1], or 1 when no model is
// loaded or the vector length does not match the model.
func (s *Scorer) Score(features []float64) float64 {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m == nil || len(features) != len(m.Weights) {
		return 1.0
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * features[i]
	}
	score := 1.0 / (1.0 + math.Exp(-z))
	return math.Max(0, math.Min(1, score))
}

// Watch hot-reloads the artifact when the trainer replaces the file. It
// returns immediately; the watcher goroutine stops with ctx.
func (s *Scorer) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: trainers write a temp file and rename over the
	// artifact, which unregisters a file-level watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					logger.Warnf("scorer model reload failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("scorer model watcher error: %v", err)
			}
		}
	}()
	return nil
}
