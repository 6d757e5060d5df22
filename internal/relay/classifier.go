package relay

import "github.com/samvad-hq/gallery-relay/internal/domain"

// Decision is the action taken for an observed gallery.
type Decision int

const (
	// DecisionCreate means no row exists: run the pipeline, publish and announce.
	DecisionCreate Decision = iota
	// DecisionUpdate means title or tags changed: edit the announcement in place.
	DecisionUpdate
	// DecisionUnchanged means nothing to do.
	DecisionUnchanged
	// DecisionSkipDeleted means the stored row is marked deleted.
	DecisionSkipDeleted
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionSkipDeleted:
		return "skip_deleted"
	default:
		return "unknown"
	}
}

// Classify compares a fresh snapshot against the stored row (nil when absent).
// Only id presence governs CREATE; only title and the tag multiset govern UPDATE.
func Classify(stored *domain.Gallery, snapshot domain.GalleryDetail) Decision {
	if stored == nil {
		return DecisionCreate
	}
	if stored.Deleted {
		return DecisionSkipDeleted
	}
	if stored.Title != snapshot.Title || !domain.TagsEqual(stored.Tags, snapshot.Tags) {
		return DecisionUpdate
	}
	return DecisionUnchanged
}
