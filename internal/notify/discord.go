package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/matchwatch/internal/engine"
	"github.com/flor3z/matchwatch/internal/report"
)

// Discord delivers reports as channel embeds. It implements engine.Deliverer.
type Discord struct {
	session *discordgo.Session
}

// NewDiscord creates a Discord deliverer over an open session
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

// Deliver sends the report embed to the destination channel. Permission-class
// REST errors are wrapped with engine.ErrPermissionDenied so the dispatcher
// can log them at the right severity.
func (d *Discord) Deliver(ctx context.Context, rep *report.Report, dest engine.Destination) error {
	_, err := d.session.ChannelMessageSendEmbed(dest.ChannelID, rep.Embed, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}

	if isPermissionError(err) {
		return fmt.Errorf("%w: %v", engine.ErrPermissionDenied, err)
	}
	return err
}

// isPermissionError reports whether the Discord REST error means the
// destination revoked our access rather than a transient failure
func isPermissionError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}

	switch restErr.Message.Code {
	case discordgo.ErrCodeMissingAccess,
		discordgo.ErrCodeMissingPermissions,
		discordgo.ErrCodeUnknownChannel,
		discordgo.ErrCodeCannotSendMessagesToThisUser:
		return true
	}
	return false
}
