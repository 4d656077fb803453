package storage

import "time"

// Account represents a tracked League of Legends account
type Account struct {
	ID            int64
	PUUID         string
	RiotID        string // GameName#TagLine
	Region        string
	LastMatchID   string     // last processed match, "" if none yet
	LastMatchTime *time.Time // creation time of the newest processed match
	LastCheckedAt *time.Time // when this account was last polled
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GuildSettings stores per-server configuration
type GuildSettings struct {
	GuildID               string
	NotificationChannelID string
	CreatedAt             time.Time
}

// Subscription links a tracked account to a Discord guild
type Subscription struct {
	ID           int64
	AccountID    int64
	GuildID      string
	RegisteredBy string // Discord user ID
	CreatedAt    time.Time
}
