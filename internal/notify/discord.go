package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Titles used for budget alerts.
const (
	TitleBudgetWarning  = "Budget warning"
	TitleBudgetExceeded = "Budget exceeded"
)

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to one channel through a bot account.
type Discord struct {
	session   messageSender
	channelID string
	closeFn   func() error
}

// NewDiscord creates a bot session for token. Only the REST API is used, so
// no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID, closeFn: session.Close}, nil
}

func (d *Discord) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.session.ChannelMessageSend(d.channelID, formatMessage(title, body), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (d *Discord) Close() error {
	if d.closeFn != nil {
		return d.closeFn()
	}
	return nil
}

func formatMessage(title, body string) string {
	icon := "ℹ️"
	switch title {
	case TitleBudgetExceeded:
		icon = "🚨"
	case TitleBudgetWarning:
		icon = "⚠️"
	}
	return fmt.Sprintf("%s **%s**\n%s", icon, title, body)
}
