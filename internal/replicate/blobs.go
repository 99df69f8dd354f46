package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cellenics/internal/blob"
	"cellenics/internal/entitymodel"
	"cellenics/internal/errs"
)

// BlobCloner copies the objects owned by one entity id between containers.
type BlobCloner struct {
	store   blob.Store
	compare *Comparator
	log     *slog.Logger
}

// NewBlobCloner returns a BlobCloner copying within store.
func NewBlobCloner(store blob.Store, log *slog.Logger) *BlobCloner {
	if log == nil {
		log = slog.Default()
	}
	return &BlobCloner{store: store, compare: NewComparator(store, log), log: log}
}

// CloneBlobs copies every object of sourceContainer whose first key segment is
// exactly prefix into destContainer, renaming the id segments named by the
// container layout. Targets proven equal are skipped. Failures are recorded per
// object and never stop the remaining objects.
func (b *BlobCloner) CloneBlobs(ctx context.Context, prefix string, container entitymodel.Container, sourceContainer, destContainer string, ns Namespace) []CloneRecord {
	entity := string(container.Owner())
	if ns.Owns(prefix) {
		err := fmt.Errorf("%w: %s", errs.ErrAlreadyNamespaced, prefix)
		return []CloneRecord{{Kind: KindBlob, Entity: entity, Source: Location{sourceContainer, prefix}, Outcome: Failed, Err: err}}
	}
	objects, err := b.store.List(ctx, sourceContainer, prefix)
	if err != nil {
		b.log.Error("listing source objects failed", "container", sourceContainer, "prefix", prefix, "error", err)
		return []CloneRecord{{
			Kind:    KindBlob,
			Entity:  entity,
			Source:  Location{sourceContainer, prefix},
			Target:  Location{destContainer, RewriteID(prefix, ns)},
			Outcome: Failed,
			Err:     errs.WrapTransient(err, "list"),
		}}
	}
	var out []CloneRecord
	for _, obj := range objects {
		// "e1" must not pick up "e10/...".
		if first, _, _ := strings.Cut(obj.Key, "/"); first != prefix {
			continue
		}
		rec := CloneRecord{
			Kind:   KindBlob,
			Entity: entity,
			Source: Location{sourceContainer, obj.Key},
			Target: Location{destContainer, RewriteKey(obj.Key, container.Layout, ns)},
		}
		if b.compare.DefinitelyEqual(ctx, rec.Target, obj) {
			rec.Outcome = SkippedEqual
			out = append(out, rec)
			continue
		}
		if _, err := b.store.Copy(ctx, sourceContainer, obj.Key, destContainer, rec.Target.Key); err != nil {
			b.log.Error("copying object failed", "source", rec.Source.String(), "target", rec.Target.String(), "error", err)
			rec.Outcome, rec.Err = Failed, errs.WrapTransient(err, "copy")
		} else {
			b.log.Debug("copied object", "source", rec.Source.String(), "target", rec.Target.String())
			rec.Outcome = Copied
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		b.log.Debug("no objects under prefix", "container", sourceContainer, "prefix", prefix)
	}
	return out
}
