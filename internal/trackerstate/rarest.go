package trackerstate

import "github.com/arjr-dev/sharenet/internal/model"

// rarestPieceIndex scans availability in piece-index order and returns
// the 0-based index of the rarest piece the caller endpoint does not
// already have.
//
// The improvement rule is strict (count < best), so ties resolve to
// the FIRST piece encountered at the minimum count. Do not change this
// to "last wins" or "<=": a looser rule would pick a different piece
// whenever two pieces share the minimum availability, which changes
// which provider every downloader fetches from next.
func rarestPieceIndex(availability []map[model.Endpoint]struct{}, caller model.Endpoint) (index int, found bool) {
	best := -1
	bestCount := 0

	for i, set := range availability {
		if _, has := set[caller]; has {
			continue
		}
		count := len(set)
		if best == -1 || count < bestCount {
			best = i
			bestCount = count
		}
	}

	if best == -1 {
		return 0, false
	}
	return best, true
}
