// Copyright 2024-2026 Aiku AI

// Package discordgw adapts the Discord REST API to the relay's destination
// gateway interface. It owns the per-call timeout; the router never blocks
// on it indefinitely.
package discordgw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/telegram-discord-relay/pkg/relay"
)

// Client is a destination gateway backed by a Discord bot session. Only the
// REST API is used; the gateway websocket is never opened because the relay
// only sends.
type Client struct {
	session *discordgo.Session
	log     zerolog.Logger
	timeout time.Duration
}

var _ relay.DestinationGateway = (*Client)(nil)

// New creates a Client from a bot token. The token is not validated until
// the first call.
func New(token string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if timeout <= 0 {
		timeout = relay.DefaultRequestTimeout
	}
	return &Client{
		session: session,
		log:     log.With().Str("component", "discordgw").Logger(),
		timeout: timeout,
	}, nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ResolveChannel verifies the channel exists and is visible to the bot.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	_, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// Post sends a message, optionally with one file attachment, and returns
// the new message id.
func (c *Client) Post(ctx context.Context, channelID, text string, att *relay.Attachment) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: text,
		Files:   toFiles(att),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyErr(err)
	}
	c.log.Debug().Str("channel_id", channelID).Str("message_id", msg.ID).Msg("Posted message")
	return msg.ID, nil
}

// Edit replaces the text of an existing message.
func (c *Client) Edit(ctx context.Context, channelID, messageID, text string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	_, err := c.session.ChannelMessageEdit(channelID, messageID, text, discordgo.WithContext(ctx))
	if err != nil {
		return classifyErr(err)
	}
	c.log.Debug().Str("channel_id", channelID).Str("message_id", messageID).Msg("Edited message")
	return nil
}

// Reply posts a message as a reply to an existing one.
func (c *Client) Reply(ctx context.Context, channelID, messageID, text string, att *relay.Attachment) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: text,
		Files:   toFiles(att),
		Reference: &discordgo.MessageReference{
			MessageID: messageID,
			ChannelID: channelID,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyErr(err)
	}
	c.log.Debug().Str("channel_id", channelID).Str("reply_to", messageID).Str("message_id", msg.ID).Msg("Posted reply")
	return msg.ID, nil
}

// FetchMessage reports whether a message still exists in the channel.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	_, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		err = classifyErr(err)
		if errors.Is(err, relay.ErrMessageNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func toFiles(att *relay.Attachment) []*discordgo.File {
	if att == nil {
		return nil
	}
	name := att.Filename
	if name == "" {
		name = "attachment"
	}
	return []*discordgo.File{{
		Name:   name,
		Reader: bytes.NewReader(att.Data),
	}}
}

// classifyErr maps Discord REST errors onto the relay's error taxonomy.
func classifyErr(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", relay.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", relay.ErrMessageNotFound, err)
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %v", relay.ErrGatewayUnavailable, err)
		}
	}
	return err
}
