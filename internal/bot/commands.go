package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/matchwatch/internal/storage"
)

// regionChoices are the platform regions offered on /register
var regionChoices = []string{"KR", "NA", "EUW", "EUNE", "BR", "JP", "OCE"}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	regions := make([]*discordgo.ApplicationCommandOptionChoice, len(regionChoices))
	for i, r := range regionChoices {
		regions[i] = &discordgo.ApplicationCommandOptionChoice{Name: r, Value: r}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "register",
			Description: "Register a player to track match history",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "riot_id",
					Description: "Riot ID (e.g., Faker#KR1)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "region",
					Description: "Platform region (default KR)",
					Required:    false,
					Choices:     regions,
				},
			},
		},
		{
			Name:        "unregister",
			Description: "Stop tracking a player's match history",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "riot_id",
					Description: "Riot ID (e.g., Faker#KR1)",
					Required:    true,
				},
			},
		},
		{
			Name:        "list",
			Description: "List all tracked players in this server",
		},
		{
			Name:        "setchannel",
			Description: "Set the channel for match notifications",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to send notifications to",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// removeCommands removes all registered slash commands
func (b *Bot) removeCommands() {
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(b.session.State.User.ID, "", cmd.ID)
		if err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
}

// splitRiotID validates and splits a GameName#TagLine identifier
func splitRiotID(input string) (gameName, tagLine string, err error) {
	parts := strings.Split(input, "#")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid format: must be GameName#TagLine (e.g., Faker#KR1)")
	}

	gameName = strings.TrimSpace(parts[0])
	tagLine = strings.TrimSpace(parts[1])

	if gameName == "" || tagLine == "" {
		return "", "", fmt.Errorf("game name and tag line cannot be empty")
	}

	return gameName, tagLine, nil
}

// handleRegister handles the /register command
func (b *Bot) handleRegister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	riotID := options[0].StringValue()
	region := "KR"
	if len(options) > 1 {
		region = options[1].StringValue()
	}

	// Respond immediately to avoid timeout
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	gameName, tagLine, err := splitRiotID(riotID)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Invalid Riot ID: %s", err.Error()))
		return
	}

	// Look up the account from the Riot API
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	riotAccount, err := b.riot.GetAccountByRiotID(ctx, region, gameName, tagLine)
	if err != nil {
		slog.Error("Failed to look up account", "riotID", riotID, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not find player `%s`. Please check the ID and try again.", riotID))
		return
	}

	// Store the account. LastMatchID stays empty: the first poll backfills
	// the most recent matches.
	account := &storage.Account{
		PUUID:  riotAccount.PUUID,
		RiotID: fmt.Sprintf("%s#%s", riotAccount.GameName, riotAccount.TagLine),
		Region: region,
	}

	if err := b.repo.CreateAccount(account); err != nil {
		// Check if already exists
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			existing, getErr := b.repo.GetAccountByPUUID(riotAccount.PUUID)
			if getErr != nil {
				slog.Error("Failed to load existing account", "riotID", riotID, "error", getErr)
				b.editResponse(s, i, "Failed to register player. Please try again.")
				return
			}
			account = existing
		} else {
			slog.Error("Failed to save account", "error", err)
			b.editResponse(s, i, "Failed to register player. Please try again.")
			return
		}
	}

	// Create subscription for this guild
	sub := &storage.Subscription{
		AccountID:    account.ID,
		GuildID:      i.GuildID,
		RegisteredBy: i.Member.User.ID,
	}

	if err := b.repo.CreateSubscription(sub); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			b.editResponse(s, i, fmt.Sprintf("Player `%s` is already being tracked in this server.", account.RiotID))
			return
		}
		slog.Error("Failed to create subscription", "error", err)
		b.editResponse(s, i, "Player saved but failed to create subscription.")
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Successfully registered `%s` for match tracking!", account.RiotID))
}

// handleUnregister handles the /unregister command
func (b *Bot) handleUnregister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	riotID := i.ApplicationCommandData().Options[0].StringValue()

	if _, _, err := splitRiotID(riotID); err != nil {
		respondWithMessage(s, i, fmt.Sprintf("Invalid Riot ID: %s", err.Error()))
		return
	}

	// Find account
	account, err := b.repo.GetAccountByRiotID(riotID)
	if err != nil {
		respondWithMessage(s, i, fmt.Sprintf("Player `%s` is not registered.", riotID))
		return
	}

	// Delete subscription for this guild
	if err := b.repo.DeleteSubscription(account.ID, i.GuildID); err != nil {
		slog.Error("Failed to delete subscription", "error", err)
		respondWithMessage(s, i, "Failed to unregister player. Please try again.")
		return
	}

	// Drop the account entirely once no guild tracks it
	if err := b.repo.DeleteAccountIfOrphaned(account.ID); err != nil {
		slog.Error("Failed to clean up orphaned account", "riotID", riotID, "error", err)
	}

	respondWithMessage(s, i, fmt.Sprintf("Successfully unregistered `%s` from match tracking.", riotID))
}

// handleList handles the /list command
func (b *Bot) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	accounts, err := b.repo.GetAccountsByGuild(i.GuildID)
	if err != nil {
		slog.Error("Failed to get accounts", "error", err)
		respondWithMessage(s, i, "Failed to retrieve player list.")
		return
	}

	if len(accounts) == 0 {
		respondWithMessage(s, i, "No players are tracked in this server.\nUse `/register` to add one!")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Tracked Players:**\n\n")
	for idx, account := range accounts {
		sb.WriteString(fmt.Sprintf("%d. `%s` (%s)\n", idx+1, account.RiotID, account.Region))
	}

	respondWithMessage(s, i, sb.String())
}

// handleSetChannel handles the /setchannel command
func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)

	settings := &storage.GuildSettings{
		GuildID:               i.GuildID,
		NotificationChannelID: channel.ID,
	}

	if err := b.repo.UpsertGuildSettings(settings); err != nil {
		slog.Error("Failed to save guild settings", "error", err)
		respondWithMessage(s, i, "Failed to set notification channel. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("Match notifications will be sent to <#%s>", channel.ID))
}

// Helper functions

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
}
