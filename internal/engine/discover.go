package engine

import (
	"context"
	"log/slog"

	"github.com/flor3z/matchwatch/internal/storage"
)

// candidate is a (account, match ID) pair discovered as new
type candidate struct {
	account *storage.Account
	matchID string
}

// discoverAccount fetches the account's recent match history and diffs it
// against the stored last-processed match. The account's last-checked-at is
// recorded for every attempt, success or failure, so zero-activity accounts
// are not re-queried before their interval elapses. Fetch failures are
// logged and skip the account for this cycle only.
func (e *Engine) discoverAccount(ctx context.Context, c *cycle, account *storage.Account) []candidate {
	ids, err := e.source.GetMatchIDsByPUUID(ctx, account.Region, account.PUUID, e.cfg.HistoryCount)

	if touchErr := e.store.TouchChecked(account.ID, c.start); touchErr != nil {
		slog.Error("Failed to record check time", "account", account.RiotID, "error", touchErr)
	}

	if err != nil {
		slog.Error("Failed to fetch match history", "account", account.RiotID, "error", err)
		return nil
	}

	newIDs := newMatchIDs(ids, account.LastMatchID)
	if len(newIDs) == 0 {
		slog.Debug("No new matches", "account", account.RiotID)
		return nil
	}

	slog.Info("New matches discovered", "account", account.RiotID, "count", len(newIDs))

	// Process oldest first so per-account progress advances chronologically
	candidates := make([]candidate, 0, len(newIDs))
	for i := len(newIDs) - 1; i >= 0; i-- {
		candidates = append(candidates, candidate{account: account, matchID: newIDs[i]})
	}
	return candidates
}

// newMatchIDs returns the prefix of fetched (newest first) strictly newer
// than the stored last-processed match ID. A cold-start account, or one whose
// stored ID has fallen out of the fetched window, yields the whole list: the
// backfill is bounded by the fetch limit, never full history.
func newMatchIDs(fetched []string, lastProcessed string) []string {
	if lastProcessed == "" {
		return fetched
	}

	for i, id := range fetched {
		if id == lastProcessed {
			return fetched[:i]
		}
	}
	return fetched
}
