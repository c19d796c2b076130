// Package cache provides the prediction cache: a TTL-bounded map from a
// content fingerprint to a previously computed category distribution.
// Implementations degrade to "always miss" on backend failure.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/sells-group/newscat/internal/model"
)

// Entry holds the content-derived part of a prediction. Per-request fields
// (prediction id, correlation id, timing) are regenerated on every hit.
type Entry struct {
	Category      string                `json:"category"`
	Confidence    float64               `json:"confidence"`
	TopCategories []model.CategoryScore `json:"top_categories"`
	ModelVersion  string                `json:"model_version"`
}

// Cache is the prediction cache contract. Get returns (nil, nil) on miss.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	Set(ctx context.Context, fingerprint string, e *Entry, ttl time.Duration) error
	// Flush drops all prediction entries (used on model reload).
	Flush(ctx context.Context) error
	Close() error
}

// Fingerprint returns the deterministic cache key for an article. The two
// fields are separated by NUL so ("ab","c") and ("a","bc") never collide.
func Fingerprint(headline, shortDescription string) string {
	h := sha256.New()
	h.Write([]byte(headline))
	h.Write([]byte{0})
	h.Write([]byte(shortDescription))
	return hex.EncodeToString(h.Sum(nil))
}
