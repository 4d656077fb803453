package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flor3z/matchwatch/internal/report"
	"github.com/flor3z/matchwatch/internal/storage"
)

// deliveryWorkers bounds the fan-out parallelism per match
const deliveryWorkers = 4

// dispatch resolves the destinations currently subscribed to any participant
// and delivers the report to each independently. One destination's failure
// never suppresses delivery to another: outcomes are collected per
// destination without short-circuiting. There are no retries; a failed
// delivery stays failed for this cycle.
func (e *Engine) dispatch(ctx context.Context, rep *report.Report, participants []*storage.Account) (sent, failed int) {
	accountIDs := make([]int64, len(participants))
	for i, p := range participants {
		accountIDs[i] = p.ID
	}

	dests, err := e.subs.DestinationsFor(accountIDs)
	if err != nil {
		slog.Error("Failed to resolve destinations", "match", rep.MatchID, "error", err)
		return 0, 0
	}

	if len(dests) == 0 {
		slog.Info("No destinations subscribed", "match", rep.MatchID)
		return 0, 0
	}

	workers := deliveryWorkers
	if len(dests) < workers {
		workers = len(dests)
	}

	jobs := make(chan Destination)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dest := range jobs {
				err := e.sender.Deliver(ctx, rep, dest)

				mu.Lock()
				switch {
				case err == nil:
					sent++
					slog.Info("Notification sent", "match", rep.MatchID, "guild", dest.GuildID, "channel", dest.ChannelID)
				case errors.Is(err, ErrPermissionDenied):
					// Expected in steady state: the channel revoked our
					// send access.
					failed++
					slog.Warn("Destination revoked send access", "match", rep.MatchID, "guild", dest.GuildID, "error", err)
				default:
					failed++
					slog.Error("Failed to deliver notification", "match", rep.MatchID, "guild", dest.GuildID, "error", err)
				}
				mu.Unlock()
			}
		}()
	}

	for _, dest := range dests {
		jobs <- dest
	}
	close(jobs)
	wg.Wait()

	return sent, failed
}
