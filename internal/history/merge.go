// Package history reconciles vote logs. A participant's history can evolve in
// two places at once — the browser's local cache while offline and the server
// store — and both must collapse into one canonical log before the scheduler
// reads it.
package history

import (
	"sort"

	"github.com/caretext/arena-cli/internal/model"
)

type key struct {
	participant string
	component   string
	trial       int
}

// Merge combines a locally cached log with a server-retrieved one. Rows are
// keyed by (participant, component, trial); the remote row wins any collision
// and local rows survive only for keys the server has not seen, which keeps
// offline-only progress without ever overriding synced state. The result is
// sorted by component, then trial, then participant, so merging is idempotent
// and stable across devices.
func Merge(local, remote []model.Vote) []model.Vote {
	rows := make(map[key]model.Vote, len(local)+len(remote))
	for _, v := range remote {
		rows[key{v.ParticipantID, v.Component, v.TrialID}] = v
	}
	for _, v := range local {
		k := key{v.ParticipantID, v.Component, v.TrialID}
		if _, ok := rows[k]; !ok {
			rows[k] = v
		}
	}

	merged := make([]model.Vote, 0, len(rows))
	for _, v := range rows {
		merged = append(merged, v)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		if a.TrialID != b.TrialID {
			return a.TrialID < b.TrialID
		}
		return a.ParticipantID < b.ParticipantID
	})
	return merged
}
