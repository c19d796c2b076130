package classifier

import (
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotLoaded is returned when a prediction is attempted before any model
// artifact has been loaded.
var ErrNotLoaded = eris.New("classifier: model not loaded")

// Handle is the process-wide mutable reference to the loaded model. Reads
// go through an atomic pointer, so a reload is invisible to in-flight
// predictions: each request completes against the snapshot it started with.
type Handle struct {
	store   *ArtifactStore
	current atomic.Pointer[Snapshot]

	mu       sync.Mutex // serializes reloads, not reads
	onReload []func(old, new string)
}

// NewHandle creates an empty handle over the given artifact store.
func NewHandle(store *ArtifactStore) *Handle {
	return &Handle{store: store}
}

// Load loads the given version, or the latest published version when
// version is empty. Loading is atomic: the handle keeps serving the old
// snapshot until the new one is fully built.
func (h *Handle) Load(version string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if version == "" {
		latest, err := h.store.Latest()
		if err != nil {
			return err
		}
		if latest == "" {
			return eris.New("classifier: no published model versions")
		}
		version = latest
	}

	snap, err := h.store.Load(version)
	if err != nil {
		return err
	}

	var oldVersion string
	if old := h.current.Load(); old != nil {
		oldVersion = old.Version()
	}
	h.current.Store(snap)

	zap.L().Info("model loaded",
		zap.String("version", snap.Version()),
		zap.String("previous", oldVersion),
		zap.Int("categories", len(snap.categories)),
	)

	for _, fn := range h.onReload {
		fn(oldVersion, snap.Version())
	}
	return nil
}

// Snapshot returns the current model, or ErrNotLoaded.
func (h *Handle) Snapshot() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

// Loaded reports whether a model is available.
func (h *Handle) Loaded() bool { return h.current.Load() != nil }

// Version returns the loaded version, or "" when nothing is loaded.
func (h *Handle) Version() string {
	if snap := h.current.Load(); snap != nil {
		return snap.Version()
	}
	return ""
}

// OnReload registers a callback invoked after each successful load with the
// old and new version strings. Must be called before the handle is shared.
func (h *Handle) OnReload(fn func(old, new string)) {
	h.onReload = append(h.onReload, fn)
}
