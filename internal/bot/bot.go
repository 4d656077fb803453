package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"

	"github.com/flor3z/matchwatch/internal/config"
	"github.com/flor3z/matchwatch/internal/engine"
	"github.com/flor3z/matchwatch/internal/notify"
	"github.com/flor3z/matchwatch/internal/report"
	"github.com/flor3z/matchwatch/internal/riot"
	"github.com/flor3z/matchwatch/internal/storage"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	riot     *riot.Client
	engine   *engine.Engine
	cron     *cron.Cron
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	riotClient := riot.NewClient(cfg.RiotAPIKey)

	// Wire the polling engine to its collaborators
	eng := engine.New(
		repo,
		riotClient,
		report.NewBuilder(),
		notify.NewResolver(repo),
		notify.NewDiscord(session),
		engine.Config{
			BatchCeiling: cfg.BatchCeiling,
			HistoryCount: cfg.MatchHistoryCount,
			MatchCap:     cfg.MatchCapPerCycle,
		},
	)

	b := &Bot{
		config:  cfg,
		session: session,
		repo:    repo,
		riot:    riotClient,
		engine:  eng,
	}

	// Register command handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts the poll schedule
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Schedule polling cycles on a fixed cadence. Overlapping fires are
	// absorbed by the engine's cycle gate.
	b.cron = cron.New()
	_, err := b.cron.AddFunc(b.config.PollSchedule, func() {
		b.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", b.config.PollSchedule, err)
	}
	b.cron.Start()

	slog.Info("Polling scheduled", "schedule", b.config.PollSchedule)

	// Kick off an immediate first cycle
	go b.runCycle(ctx)

	return nil
}

func (b *Bot) runCycle(ctx context.Context) {
	summary, err := b.engine.RunCycle(ctx)
	if err != nil {
		slog.Error("Polling cycle failed", "error", err)
		return
	}
	if summary.Skipped {
		slog.Debug("Polling cycle skipped", "skippedRuns", b.engine.Gate().SkippedRuns())
	}
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop scheduling new cycles and wait for a running one to finish
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "register":
		b.handleRegister(s, i)
	case "unregister":
		b.handleUnregister(s, i)
	case "list":
		b.handleList(s, i)
	case "setchannel":
		b.handleSetChannel(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
