package notify

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flor3z/matchwatch/internal/engine"
	"github.com/flor3z/matchwatch/internal/storage"
)

// Resolver maps tracked accounts to the channels currently subscribed to
// them. It implements engine.SubscriptionResolver. Lookups hit storage every
// time so subscription changes take effect on the next match, not the next
// restart.
type Resolver struct {
	repo *storage.Repository
}

// NewResolver creates a subscription resolver
func NewResolver(repo *storage.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// DestinationsFor returns one destination per guild subscribed to any of the
// given accounts. Guilds without a configured notification channel are
// skipped with a warning.
func (r *Resolver) DestinationsFor(accountIDs []int64) ([]engine.Destination, error) {
	subs, err := r.repo.GetSubscriptionsByAccounts(accountIDs)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}

	seen := make(map[string]bool)
	var dests []engine.Destination
	for _, sub := range subs {
		if seen[sub.GuildID] {
			continue
		}
		seen[sub.GuildID] = true

		settings, err := r.repo.GetGuildSettings(sub.GuildID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				slog.Warn("No notification channel set for guild", "guildID", sub.GuildID)
				continue
			}
			return nil, fmt.Errorf("load guild settings: %w", err)
		}
		if settings.NotificationChannelID == "" {
			slog.Warn("No notification channel set for guild", "guildID", sub.GuildID)
			continue
		}

		dests = append(dests, engine.Destination{
			GuildID:   sub.GuildID,
			ChannelID: settings.NotificationChannelID,
		})
	}

	return dests, nil
}
