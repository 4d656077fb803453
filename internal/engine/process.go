package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flor3z/matchwatch/internal/riot"
	"github.com/flor3z/matchwatch/internal/storage"
)

// processCandidate handles one discovered (account, match) pair: dedup
// against the cycle's processed set, fetch the payload once, resolve the
// full set of tracked participants, render the report, and dispatch it.
// Failures are logged per match and never abort the rest of the cycle.
func (e *Engine) processCandidate(ctx context.Context, c *cycle, cand candidate, roster map[string]*storage.Account) {
	if c.processed[cand.matchID] {
		// Another tracked account already triggered this match this cycle;
		// its participation was recorded then.
		slog.Debug("Match already processed this cycle", "match", cand.matchID, "account", cand.account.RiotID)
		return
	}

	if e.cfg.MatchCap > 0 && c.summary.MatchesProcessed >= e.cfg.MatchCap {
		slog.Warn("Per-cycle match cap reached, deferring match", "match", cand.matchID, "cap", e.cfg.MatchCap)
		return
	}

	match, err := e.source.GetMatch(ctx, cand.account.Region, cand.matchID)
	if err != nil {
		if errors.Is(err, riot.ErrNotFound) {
			// Match has not propagated upstream yet. Left unmarked and
			// uncommitted, it is rediscovered next cycle.
			slog.Info("Match not yet available, will retry next cycle", "match", cand.matchID)
			return
		}
		slog.Error("Failed to fetch match", "match", cand.matchID, "error", err)
		return
	}

	// A match may include several tracked accounts, not just the one that
	// triggered discovery.
	participants := trackedParticipants(match, roster)

	rep, err := e.reports.Build(match, participants)
	if err != nil {
		slog.Error("Failed to build report", "match", cand.matchID, "error", err)
		return
	}

	c.processed[cand.matchID] = true
	c.summary.MatchesProcessed++

	matchTime := match.CreationTime()
	for _, p := range participants {
		c.recordProgress(p.ID, cand.matchID, matchTime)
	}

	if rep == nil {
		slog.Debug("No report warranted", "match", cand.matchID)
		return
	}

	sent, failed := e.dispatch(ctx, rep, participants)
	c.summary.NotificationsSent += sent
	c.summary.NotificationsFailed += failed
}

// trackedParticipants resolves which tracked accounts played in the match,
// in the payload's participant order
func trackedParticipants(match *riot.Match, roster map[string]*storage.Account) []*storage.Account {
	var participants []*storage.Account
	for _, puuid := range match.Metadata.Participants {
		if account, ok := roster[puuid]; ok {
			participants = append(participants, account)
		}
	}
	return participants
}
