package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flor3z/matchwatch/internal/report"
	"github.com/flor3z/matchwatch/internal/riot"
	"github.com/flor3z/matchwatch/internal/storage"
)

// ErrPermissionDenied marks a delivery failure caused by the destination
// revoking send access. Deliverer implementations wrap their transport error
// with it; the dispatcher logs these at warning level since they are expected
// in steady-state operation.
var ErrPermissionDenied = errors.New("destination permission denied")

// Destination is a channel subscribed to one or more tracked accounts
type Destination struct {
	GuildID   string
	ChannelID string
}

// MatchSource fetches match data from the external match-history API
type MatchSource interface {
	GetMatchIDsByPUUID(ctx context.Context, region, puuid string, count int) ([]string, error)
	GetMatch(ctx context.Context, region, matchID string) (*riot.Match, error)
}

// ReportBuilder renders a notification for a processed match. A nil report
// means no message is warranted.
type ReportBuilder interface {
	Build(match *riot.Match, participants []*storage.Account) (*report.Report, error)
}

// SubscriptionResolver looks up the destinations subscribed to any of the
// given accounts. Resolved fresh per match, never cached across cycles.
type SubscriptionResolver interface {
	DestinationsFor(accountIDs []int64) ([]Destination, error)
}

// Deliverer sends a report to a single destination
type Deliverer interface {
	Deliver(ctx context.Context, rep *report.Report, dest Destination) error
}

// StateStore is the durable per-account polling state
type StateStore interface {
	GetAllAccounts() ([]*storage.Account, error)
	TouchChecked(accountID int64, at time.Time) error
	CommitProgress(accountID int64, matchID string, matchTime time.Time) error
}

// Config bounds the engine's per-cycle work
type Config struct {
	// BatchCeiling caps how many accounts are checked per cycle
	BatchCeiling int
	// HistoryCount is how many recent match IDs to fetch per account
	HistoryCount int
	// MatchCap caps how many distinct matches are processed per cycle;
	// 0 means unlimited
	MatchCap int
}

// DefaultConfig returns the standard engine bounds
func DefaultConfig() Config {
	return Config{
		BatchCeiling: 25,
		HistoryCount: 5,
		MatchCap:     50,
	}
}

// CycleSummary reports what one cycle did, for observability. Partial
// failures are internal (logged) and do not surface here as errors.
type CycleSummary struct {
	Skipped             bool
	AccountsChecked     int
	NewMatches          int
	MatchesProcessed    int
	NotificationsSent   int
	NotificationsFailed int
}

// Engine is the polling-and-dispatch core: it decides which accounts to
// check, discovers new matches, deduplicates them across accounts, generates
// one report per match, fans it out to subscribed destinations, and commits
// per-account progress.
type Engine struct {
	gate    *Gate
	store   StateStore
	source  MatchSource
	reports ReportBuilder
	subs    SubscriptionResolver
	sender  Deliverer
	cfg     Config

	now func() time.Time
}

// New creates an engine. The gate is owned by the engine and created here;
// one engine instance per process gives single-instance semantics.
func New(store StateStore, source MatchSource, reports ReportBuilder, subs SubscriptionResolver, sender Deliverer, cfg Config) *Engine {
	return &Engine{
		gate:    NewGate(),
		store:   store,
		source:  source,
		reports: reports,
		subs:    subs,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Gate exposes the cycle gate counters for observability
func (e *Engine) Gate() *Gate {
	return e.gate
}

// cycle is the ephemeral state of one engine run
type cycle struct {
	start time.Time

	// processed is the cycle-scoped dedup set: a match triggers report
	// generation and dispatch at most once per cycle, even when several
	// tracked accounts reference it
	processed map[string]bool

	// progress tracks, per account, the newest match processed this cycle
	progress map[int64]matchProgress

	summary CycleSummary
}

type matchProgress struct {
	matchID   string
	matchTime time.Time
}

func newCycle(start time.Time) *cycle {
	return &cycle{
		start:     start,
		processed: make(map[string]bool),
		progress:  make(map[int64]matchProgress),
	}
}

// recordProgress keeps the chronologically newest match per account
func (c *cycle) recordProgress(accountID int64, matchID string, matchTime time.Time) {
	cur, ok := c.progress[accountID]
	if !ok || matchTime.After(cur.matchTime) {
		c.progress[accountID] = matchProgress{matchID: matchID, matchTime: matchTime}
	}
}

// RunCycle executes one polling cycle. It returns a zero summary with
// Skipped set when another cycle is active. Account- and match-level
// failures are logged and isolated; only systemic failures (the account
// store being unreachable) are returned as errors.
func (e *Engine) RunCycle(ctx context.Context) (CycleSummary, error) {
	if !e.gate.TryEnter() {
		slog.Debug("Polling cycle skipped, previous cycle still active")
		return CycleSummary{Skipped: true}, nil
	}
	defer e.gate.Exit()

	accounts, err := e.store.GetAllAccounts()
	if err != nil {
		return CycleSummary{}, fmt.Errorf("load accounts: %w", err)
	}

	now := e.now()
	c := newCycle(now)

	roster := make(map[string]*storage.Account, len(accounts))
	for _, a := range accounts {
		roster[a.PUUID] = a
	}

	batch := selectBatch(accounts, now, e.cfg.BatchCeiling)
	c.summary.AccountsChecked = len(batch)

	if len(batch) == 0 {
		slog.Debug("No accounts due for polling", "tracked", len(accounts))
		return c.summary, nil
	}

	slog.Info("Polling cycle started", "tracked", len(accounts), "selected", len(batch))

	// Accounts in oldest-checked-first order; matches within an account in
	// oldest-to-newest order as produced by the discovery diff.
	for _, account := range batch {
		candidates := e.discoverAccount(ctx, c, account)
		c.summary.NewMatches += len(candidates)

		for _, cand := range candidates {
			e.processCandidate(ctx, c, cand, roster)
		}
	}

	e.commit(c)

	slog.Info("Polling cycle finished",
		"accountsChecked", c.summary.AccountsChecked,
		"newMatches", c.summary.NewMatches,
		"matchesProcessed", c.summary.MatchesProcessed,
		"notificationsSent", c.summary.NotificationsSent,
		"notificationsFailed", c.summary.NotificationsFailed,
		"elapsed", e.now().Sub(now))

	return c.summary, nil
}
