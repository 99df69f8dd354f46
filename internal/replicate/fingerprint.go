package replicate

import (
	"context"
	"log/slog"

	"cellenics/internal/blob"
)

// Comparator decides whether a target object already holds the source content.
// Only a proven match counts: a missing fingerprint, a missing or different
// target and any error from the check all report false.
type Comparator struct {
	store blob.Store
	log   *slog.Logger
}

// NewComparator returns a Comparator checking targets in store.
func NewComparator(store blob.Store, log *slog.Logger) *Comparator {
	if log == nil {
		log = slog.Default()
	}
	return &Comparator{store: store, log: log}
}

// DefinitelyEqual reports whether target exists with the fingerprint of source.
func (c *Comparator) DefinitelyEqual(ctx context.Context, target Location, source blob.Info) bool {
	if source.ETag == "" {
		return false
	}
	ok, err := c.store.Matches(ctx, target.Container, target.Key, source.ETag)
	if err != nil {
		c.log.Debug("fingerprint check inconclusive", "target", target.String(), "error", err)
		return false
	}
	return ok
}
