package engine

import (
	"sort"
	"time"

	"github.com/flor3z/matchwatch/internal/storage"
)

// selectBatch picks the accounts to check this cycle: eligible accounts only,
// oldest-checked first (never-checked accounts sort before everything else),
// truncated to the ceiling. Deferred accounts are simply eligible again next
// cycle; no queue is kept.
func selectBatch(accounts []*storage.Account, now time.Time, ceiling int) []*storage.Account {
	eligible := make([]*storage.Account, 0, len(accounts))
	for _, a := range accounts {
		if isEligible(a.LastMatchTime, a.LastCheckedAt, now) {
			eligible = append(eligible, a)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ci, cj := eligible[i].LastCheckedAt, eligible[j].LastCheckedAt
		if ci == nil {
			return cj != nil
		}
		if cj == nil {
			return false
		}
		return ci.Before(*cj)
	})

	if ceiling > 0 && len(eligible) > ceiling {
		eligible = eligible[:ceiling]
	}

	return eligible
}
