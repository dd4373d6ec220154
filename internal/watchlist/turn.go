package watchlist

import "github.com/stwalsh4118/urnext/internal/models"

// CanAdd reports whether actorID may add an item of kind. Members alternate
// per kind: the member who added the last item of a kind must wait for the
// other member, unless the queue is neutral.
func CanAdd(w *models.Watchlist, kind models.Kind, actorID string, pendingTotal int64) bool {
	if admissionQueueNeutral(pendingTotal) {
		return true
	}
	return turnIsFree(w.LastAddedByKind(kind), actorID)
}

// CanPromote reports whether actorID may promote an item of kind. It uses the
// same alternation as CanAdd with a looser neutral-queue threshold.
func CanPromote(w *models.Watchlist, kind models.Kind, actorID string, pendingTotal int64) bool {
	if promotionQueueNeutral(pendingTotal) {
		return true
	}
	return turnIsFree(w.LastAddedByKind(kind), actorID)
}

func turnIsFree(lastAddedBy *string, actorID string) bool {
	return lastAddedBy == nil || *lastAddedBy != actorID
}

// The thresholds below count pending items across both kinds, not per kind.
// A per-kind count may be what is actually wanted; keep them here so that
// decision stays in one place.

// admissionQueueNeutral reports whether an add bypasses the turn rule
func admissionQueueNeutral(pendingTotal int64) bool {
	return pendingTotal == 0
}

// promotionQueueNeutral reports whether a promotion bypasses the turn rule
func promotionQueueNeutral(pendingTotal int64) bool {
	return pendingTotal <= 1
}

// shouldResetTurns reports whether removing an item leaves the queue small
// enough that all turn pointers go back to neutral
func shouldResetTurns(remainingPending int64) bool {
	return remainingPending <= 1
}
