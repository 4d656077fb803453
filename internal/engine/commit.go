package engine

import "log/slog"

// commit writes back, once per account that participated in at least one
// processed match, the newest processed match ID and its creation time. A
// failed write is logged; the account re-surfaces those matches next cycle
// and the rewrite converges on the same state.
func (e *Engine) commit(c *cycle) {
	for accountID, prog := range c.progress {
		if err := e.store.CommitProgress(accountID, prog.matchID, prog.matchTime); err != nil {
			slog.Error("Failed to commit account progress",
				"accountID", accountID, "match", prog.matchID, "error", err)
		}
	}
}
