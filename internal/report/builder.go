package report

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/matchwatch/internal/riot"
	"github.com/flor3z/matchwatch/internal/storage"
)

// Report is a rendered match notification ready for delivery
type Report struct {
	MatchID string
	Embed   *discordgo.MessageEmbed
}

// Builder turns a match payload plus the tracked participants into a Discord
// embed. A match can involve several tracked accounts; one report covers all
// of them.
type Builder struct{}

// NewBuilder creates a report builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders the report for a match. Returns nil when no message is
// warranted (no tracked participants).
func (b *Builder) Build(match *riot.Match, participants []*storage.Account) (*Report, error) {
	if len(participants) == 0 {
		return nil, nil
	}

	wins, losses := 0, 0
	fields := make([]*discordgo.MessageEmbedField, 0, len(participants))
	for _, account := range participants {
		p := match.FindParticipant(account.PUUID)
		if p == nil {
			return nil, fmt.Errorf("participant %s missing from match %s", account.RiotID, match.Metadata.MatchID)
		}

		if p.Win {
			wins++
		} else {
			losses++
		}

		fields = append(fields, participantField(account.RiotID, match, p))
	}

	embed := &discordgo.MessageEmbed{
		Title:       resultTitle(wins, losses),
		Color:       resultColor(wins, losses),
		Description: fmt.Sprintf("%s | %s", riot.GetQueueName(match.Info.QueueID), formatDuration(match.Info.GameDuration)),
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Match ID: %s", match.Metadata.MatchID),
		},
		Timestamp: time.UnixMilli(match.Info.GameEndTimestamp).Format(time.RFC3339),
	}

	return &Report{MatchID: match.Metadata.MatchID, Embed: embed}, nil
}

// participantField summarizes one tracked player's performance
func participantField(name string, match *riot.Match, p *riot.Participant) *discordgo.MessageEmbedField {
	result := "Defeat"
	if p.Win {
		result = "Victory"
	}

	kda := float64(p.Kills+p.Assists) / float64(max(p.Deaths, 1))
	cs := p.TotalMinionsKilled + p.NeutralMinionsKilled
	gameDurationMin := float64(match.Info.GameDuration) / 60.0
	csPerMin := float64(cs) / gameDurationMin

	return &discordgo.MessageEmbedField{
		Name: fmt.Sprintf("%s — %s (%s)", name, p.ChampionName, result),
		Value: fmt.Sprintf("KDA %d/%d/%d (%.2f) · CS %d (%.1f/min) · %s dmg · %s gold · Vision %d",
			p.Kills, p.Deaths, p.Assists, kda,
			cs, csPerMin,
			formatNumber(p.TotalDamageDealtToChampions), formatNumber(p.GoldEarned),
			p.VisionScore),
	}
}

func resultTitle(wins, losses int) string {
	switch {
	case losses == 0:
		return "Victory"
	case wins == 0:
		return "Defeat"
	default:
		return "Match Result"
	}
}

func resultColor(wins, losses int) int {
	switch {
	case losses == 0:
		return 0x2ECC71 // Green
	case wins == 0:
		return 0xE74C3C // Red
	default:
		return 0x3498DB // Blue, tracked players on both teams
	}
}

func formatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// formatNumber formats large numbers with commas
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
