package effectors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const (
	emojiAccept  = "✅"
	emojiDismiss = "❌"
)

// Compliance receives break prompt responses
type Compliance interface {
	TrackCompliance(accepted bool)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string
}

// DiscordSender posts notifications to a channel. Break prompts get
// accept/dismiss reactions; the user's reaction is reported to Compliance.
type DiscordSender struct {
	session    *discordgo.Session
	channelID  string
	compliance Compliance
	log        zerolog.Logger

	mu      sync.Mutex
	botID   string
	prompts map[string]bool // message id -> awaiting response
}

// NewDiscordSender creates a sender. compliance may be nil.
func NewDiscordSender(cfg DiscordConfig, compliance Compliance, log zerolog.Logger) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	d := &DiscordSender{
		session:    session,
		channelID:  cfg.ChannelID,
		compliance: compliance,
		log:        log,
		prompts:    make(map[string]bool),
	}

	session.AddHandler(d.handleReaction)
	session.Identify.Intents = discordgo.IntentsGuildMessageReactions | discordgo.IntentsDirectMessageReactions

	return d, nil
}

// Open connects to Discord
func (d *DiscordSender) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.mu.Lock()
	d.botID = d.session.State.User.ID
	d.mu.Unlock()
	d.log.Info().Str("user", d.session.State.User.Username).Msg("connected to Discord")
	return nil
}

// Close disconnects from Discord
func (d *DiscordSender) Close() error {
	return d.session.Close()
}

// Send posts msg and, for prompts, adds the response reactions
func (d *DiscordSender) Send(ctx context.Context, msg Message) (string, error) {
	m, err := d.session.ChannelMessageSend(d.channelID, msg.Text, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if !msg.Prompt {
		return m.ID, nil
	}

	d.mu.Lock()
	d.prompts[m.ID] = true
	d.mu.Unlock()

	for _, emoji := range []string{emojiAccept, emojiDismiss} {
		if err := d.session.MessageReactionAdd(d.channelID, m.ID, emoji, discordgo.WithContext(ctx)); err != nil {
			d.log.Warn().Err(err).Str("emoji", emoji).Msg("failed to add prompt reaction")
		}
	}
	return m.ID, nil
}

func (d *DiscordSender) handleReaction(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	d.resolvePrompt(r.MessageID, r.UserID, r.Emoji.Name)
}

// resolvePrompt reports the first accept/dismiss reaction on a prompt
func (d *DiscordSender) resolvePrompt(messageID, userID, emoji string) {
	d.mu.Lock()
	if userID == d.botID || !d.prompts[messageID] {
		d.mu.Unlock()
		return
	}
	var accepted bool
	switch emoji {
	case emojiAccept:
		accepted = true
	case emojiDismiss:
		accepted = false
	default:
		d.mu.Unlock()
		return
	}
	delete(d.prompts, messageID)
	d.mu.Unlock()

	d.log.Info().Bool("accepted", accepted).Msg("break prompt answered")
	if d.compliance != nil {
		d.compliance.TrackCompliance(accepted)
	}
}

// isNonRetryableError reports Discord client errors (4xx) that a retry
// cannot fix
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}
