package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			puuid VARCHAR(100) UNIQUE NOT NULL,
			riot_id VARCHAR(50) NOT NULL,
			region VARCHAR(10) NOT NULL DEFAULT 'KR',
			last_match_id VARCHAR(50) NOT NULL DEFAULT '',
			last_match_time TIMESTAMP,
			last_checked_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			notification_channel_id VARCHAR(20),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS account_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			guild_id VARCHAR(20) NOT NULL,
			registered_by VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
			UNIQUE(account_id, guild_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_puuid ON accounts(puuid)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_guild ON account_subscriptions(guild_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Account operations

// CreateAccount inserts a new tracked account
func (r *Repository) CreateAccount(a *Account) error {
	result, err := r.db.Exec(
		`INSERT INTO accounts (puuid, riot_id, region, last_match_id) VALUES (?, ?, ?, ?)`,
		a.PUUID, a.RiotID, a.Region, a.LastMatchID,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// GetAccountByPUUID finds an account by PUUID
func (r *Repository) GetAccountByPUUID(puuid string) (*Account, error) {
	return r.scanAccount(r.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE puuid = ?`, puuid,
	))
}

// GetAccountByRiotID finds an account by Riot ID
func (r *Repository) GetAccountByRiotID(riotID string) (*Account, error) {
	return r.scanAccount(r.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE riot_id = ?`, riotID,
	))
}

const accountColumns = `id, puuid, riot_id, region, last_match_id, last_match_time, last_checked_at, created_at, updated_at`

func (r *Repository) scanAccount(row *sql.Row) (*Account, error) {
	a := &Account{}
	var lastMatchTime, lastCheckedAt sql.NullTime
	err := row.Scan(&a.ID, &a.PUUID, &a.RiotID, &a.Region, &a.LastMatchID,
		&lastMatchTime, &lastCheckedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastMatchTime.Valid {
		a.LastMatchTime = &lastMatchTime.Time
	}
	if lastCheckedAt.Valid {
		a.LastCheckedAt = &lastCheckedAt.Time
	}
	return a, nil
}

// GetAllAccounts returns every tracked account
func (r *Repository) GetAllAccounts() ([]*Account, error) {
	rows, err := r.db.Query(`SELECT ` + accountColumns + ` FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// GetAccountsByGuild returns all accounts registered in a guild
func (r *Repository) GetAccountsByGuild(guildID string) ([]*Account, error) {
	rows, err := r.db.Query(
		`SELECT a.id, a.puuid, a.riot_id, a.region, a.last_match_id, a.last_match_time, a.last_checked_at, a.created_at, a.updated_at
		 FROM accounts a
		 JOIN account_subscriptions sub ON a.id = sub.account_id
		 WHERE sub.guild_id = ?`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]*Account, error) {
	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		var lastMatchTime, lastCheckedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.PUUID, &a.RiotID, &a.Region, &a.LastMatchID,
			&lastMatchTime, &lastCheckedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if lastMatchTime.Valid {
			a.LastMatchTime = &lastMatchTime.Time
		}
		if lastCheckedAt.Valid {
			a.LastCheckedAt = &lastCheckedAt.Time
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// TouchChecked records that an account was polled. The stored value never
// moves backwards, so replayed or out-of-order touches are harmless.
func (r *Repository) TouchChecked(accountID int64, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE accounts SET last_checked_at = ?, updated_at = ?
		 WHERE id = ? AND (last_checked_at IS NULL OR last_checked_at <= ?)`,
		at, time.Now(), accountID, at,
	)
	return err
}

// CommitProgress advances an account's last processed match. Idempotent:
// re-running with the same inputs leaves the same stored state.
func (r *Repository) CommitProgress(accountID int64, matchID string, matchTime time.Time) error {
	_, err := r.db.Exec(
		`UPDATE accounts SET last_match_id = ?, last_match_time = ?, updated_at = ? WHERE id = ?`,
		matchID, matchTime, time.Now(), accountID,
	)
	return err
}

// DeleteAccountIfOrphaned removes an account that no guild subscribes to
func (r *Repository) DeleteAccountIfOrphaned(accountID int64) error {
	_, err := r.db.Exec(
		`DELETE FROM accounts WHERE id = ?
		 AND NOT EXISTS (SELECT 1 FROM account_subscriptions WHERE account_id = ?)`,
		accountID, accountID,
	)
	return err
}

// Subscription operations

// CreateSubscription creates a new subscription
func (r *Repository) CreateSubscription(sub *Subscription) error {
	result, err := r.db.Exec(
		`INSERT INTO account_subscriptions (account_id, guild_id, registered_by) VALUES (?, ?, ?)`,
		sub.AccountID, sub.GuildID, sub.RegisteredBy,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = id
	return nil
}

// DeleteSubscription removes a subscription
func (r *Repository) DeleteSubscription(accountID int64, guildID string) error {
	_, err := r.db.Exec(
		`DELETE FROM account_subscriptions WHERE account_id = ? AND guild_id = ?`,
		accountID, guildID,
	)
	return err
}

// GetSubscriptionsByGuild returns all subscriptions for a guild
func (r *Repository) GetSubscriptionsByGuild(guildID string) ([]*Subscription, error) {
	rows, err := r.db.Query(
		`SELECT id, account_id, guild_id, registered_by, created_at FROM account_subscriptions WHERE guild_id = ?`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// GetSubscriptionsByAccounts returns the guild subscriptions covering any of
// the given accounts, one row per (account, guild) pair
func (r *Repository) GetSubscriptionsByAccounts(accountIDs []int64) ([]*Subscription, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, account_id, guild_id, registered_by, created_at FROM account_subscriptions WHERE account_id IN (?`
	args := []interface{}{accountIDs[0]}
	for _, id := range accountIDs[1:] {
		query += `, ?`
		args = append(args, id)
	}
	query += `)`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func scanSubscriptions(rows *sql.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		sub := &Subscription{}
		if err := rows.Scan(&sub.ID, &sub.AccountID, &sub.GuildID, &sub.RegisteredBy, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// Guild settings operations

// UpsertGuildSettings creates or updates guild settings
func (r *Repository) UpsertGuildSettings(settings *GuildSettings) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, notification_channel_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET notification_channel_id = excluded.notification_channel_id`,
		settings.GuildID, settings.NotificationChannelID,
	)
	return err
}

// GetGuildSettings retrieves guild settings
func (r *Repository) GetGuildSettings(guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{}
	err := r.db.QueryRow(
		`SELECT guild_id, notification_channel_id, created_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.GuildID, &settings.NotificationChannelID, &settings.CreatedAt)
	if err != nil {
		return nil, err
	}
	return settings, nil
}
