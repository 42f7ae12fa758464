// Copyright 2024-2026 Aiku AI

// Package telegramgw adapts an MTProto user session to the relay's source
// gateway interface: it subscribes to channel updates, normalizes them into
// relay.InboundMessage events, and serves media downloads.
package telegramgw

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/aiku/telegram-discord-relay/pkg/relay"
)

// eventBufferSize bounds the handoff channel between the MTProto update
// handler and the router's event loop.
const eventBufferSize = 100

// Client is a source gateway backed by a Telegram user session.
type Client struct {
	log       zerolog.Logger
	cfg       relay.TelegramConfig
	timeout   time.Duration
	client    *telegram.Client
	gaps      *updates.Manager
	events    chan *relay.InboundMessage
	media     *mediaCache
	channelID int64
}

var _ relay.SourceGateway = (*Client)(nil)

// New creates a Client. The session file is created on first login; the
// login code is read interactively from stdin when Telegram asks for one.
func New(cfg relay.TelegramConfig, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = relay.DefaultRequestTimeout
	}
	c := &Client{
		log:       log.With().Str("component", "telegramgw").Logger(),
		cfg:       cfg,
		timeout:   timeout,
		events:    make(chan *relay.InboundMessage, eventBufferSize),
		media:     newMediaCache(defaultMediaCacheSize),
		channelID: cfg.ChannelID,
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.handleMessage(ctx, u.Message, false)
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return c.handleMessage(ctx, u.Message, true)
	})

	c.gaps = updates.New(updates.Config{Handler: dispatcher})
	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
		UpdateHandler:  c.gaps,
	})
	return c
}

// Events returns the stream of normalized inbound messages. The channel is
// never closed; consumers stop by canceling the context passed to Run.
func (c *Client) Events() <-chan *relay.InboundMessage {
	return c.events
}

// Run connects, authenticates if necessary, and processes updates until ctx
// is canceled.
func (c *Client) Run(ctx context.Context) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(c.cfg.PhoneNumber, "", auth.CodeAuthenticatorFunc(c.askCode)),
			auth.SendCodeOptions{},
		)
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("telegram authentication failed: %w", err)
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch self: %w", err)
		}
		c.log.Info().Int64("user_id", self.ID).Int64("channel_id", c.channelID).
			Msg("Telegram client connected")

		return c.gaps.Run(ctx, c.client.API(), self.ID, updates.AuthOptions{IsBot: self.Bot})
	})
}

// askCode prompts for the login code on stdin. Only needed on first run,
// before the session file exists.
func (c *Client) askCode(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Telegram login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// handleMessage normalizes one channel message update and hands it to the
// event stream. Messages from other channels are ignored.
func (c *Client) handleMessage(ctx context.Context, msg tg.MessageClass, isEdit bool) error {
	m, ok := msg.(*tg.Message)
	if !ok {
		return nil
	}
	peer, ok := m.PeerID.(*tg.PeerChannel)
	if !ok || peer.ChannelID != c.channelID {
		return nil
	}

	var replyTo int64
	if header, ok := m.GetReplyTo(); ok {
		if h, ok := header.(*tg.MessageReplyHeader); ok {
			replyTo = int64(h.ReplyToMsgID)
		}
	}

	kind, filename := describeMedia(m.Media)
	if kind != relay.MediaNone {
		c.media.put(int64(m.ID), m.Media)
	}

	evt := &relay.InboundMessage{
		ChatID:    peer.ChannelID,
		MessageID: int64(m.ID),
		Text:      m.Message,
		ReplyToID: replyTo,
		Media:     kind,
		Filename:  filename,
		IsEdit:    isEdit,
	}

	c.log.Debug().
		Int64("telegram_msg_id", evt.MessageID).
		Bool("edit", isEdit).
		Stringer("media", kind).
		Msg("Received channel message")

	select {
	case c.events <- evt:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
