package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest describes one published model artifact. Artifacts are immutable:
// a version directory is written once and never modified.
type Manifest struct {
	Version       string             `yaml:"version"`
	CreatedAt     time.Time          `yaml:"created_at"`
	TrainingJobID string             `yaml:"training_job_id,omitempty"`
	Metrics       map[string]float64 `yaml:"metrics,omitempty"`
	Description   string             `yaml:"description,omitempty"`
}

// Weights is the serialized linear model: a vocabulary index plus one weight
// row and bias per category. Produced by the training pipeline.
type Weights struct {
	Categories []string       `json:"categories"`
	Vocabulary map[string]int `json:"vocabulary"`
	Coef       [][]float64    `json:"coef"` // [category][feature]
	Intercept  []float64      `json:"intercept"`
}

func (w *Weights) validate() error {
	if len(w.Categories) == 0 {
		return eris.New("artifact: no categories")
	}
	if len(w.Coef) != len(w.Categories) {
		return eris.Errorf("artifact: %d weight rows for %d categories", len(w.Coef), len(w.Categories))
	}
	if len(w.Intercept) != len(w.Categories) {
		return eris.Errorf("artifact: %d intercepts for %d categories", len(w.Intercept), len(w.Categories))
	}
	for i, row := range w.Coef {
		for _, idx := range w.Vocabulary {
			if idx < 0 || idx >= len(row) {
				return eris.Errorf("artifact: vocabulary index %d out of range for row %d", idx, i)
			}
		}
		break // all rows share the training pipeline's feature count
	}
	return nil
}

const (
	manifestFile = "manifest.yaml"
	weightsFile  = "model.json"
)

// ArtifactStore reads versioned artifacts from a directory tree laid out as
// <root>/<version>/{manifest.yaml,model.json}.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{root: dir}
}

// Root returns the artifact root directory.
func (s *ArtifactStore) Root() string { return s.root }

// Load reads the artifact for version and builds an immutable Snapshot.
func (s *ArtifactStore) Load(version string) (*Snapshot, error) {
	dir := filepath.Join(s.root, version)

	var m Manifest
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read manifest for %s", version)
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse manifest for %s", version)
	}
	if m.Version == "" {
		m.Version = version
	}

	raw, err = os.ReadFile(filepath.Join(dir, weightsFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read weights for %s", version)
	}
	var w Weights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse weights for %s", version)
	}
	if err := w.validate(); err != nil {
		return nil, eris.Wrapf(err, "artifact: invalid weights for %s", version)
	}

	return newSnapshot(m, &w), nil
}

// Versions lists published versions, newest first. Version names are
// timestamp-based (v20250101_120000) so lexical order is creation order.
func (s *ArtifactStore) Versions() ([]Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "artifact: read root")
	}

	var out []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.root, e.Name(), manifestFile))
		if err != nil {
			continue // not a published artifact yet
		}
		var m Manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			continue
		}
		if m.Version == "" {
			m.Version = e.Name()
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// Latest returns the newest published version name, or "" when none exist.
func (s *ArtifactStore) Latest() (string, error) {
	versions, err := s.Versions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0].Version, nil
}
